// Package bitset provides a fixed-capacity 256-bit set keyed by small
// non-negative integers, used throughout the watch subsystem to represent
// "which I2C bus numbers are in some state" snapshots.
//
// Set256 is a value type: every operation returns a new set and never
// mutates its receiver. Two snapshots taken at different times are compared
// by set difference, not by iterating both.
//
// Capacity is fixed at 256 because Linux I2C bus numbers are small integers;
// an index outside [0,255] is a programming error and panics.
package bitset

import (
	"fmt"
	"math/bits"
)

// Capacity is the number of distinct members a Set256 can hold.
const Capacity = 256

const wordCount = Capacity / 64

// Set256 is a fixed 256-bit membership set. The zero value is the empty set.
type Set256 [wordCount]uint64

// checkRange panics if n cannot be a member of a Set256.
func checkRange(n int) {
	if n < 0 || n >= Capacity {
		panic(fmt.Sprintf("bitset: index %d out of range [0,%d)", n, Capacity))
	}
}

// Insert returns a copy of s with n added.
func (s Set256) Insert(n int) Set256 {
	checkRange(n)
	s[n/64] |= 1 << (uint(n) % 64)
	return s
}

// Remove returns a copy of s with n removed.
func (s Set256) Remove(n int) Set256 {
	checkRange(n)
	s[n/64] &^= 1 << (uint(n) % 64)
	return s
}

// Contains reports whether n is a member of s.
func (s Set256) Contains(n int) bool {
	checkRange(n)
	return s[n/64]&(1<<(uint(n)%64)) != 0
}

// Count returns the number of members of s.
func (s Set256) Count() int {
	ct := 0
	for _, w := range s {
		ct += bits.OnesCount64(w)
	}
	return ct
}

// IsEmpty reports whether s has no members.
func (s Set256) IsEmpty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

// Union returns the set of members in s or t.
func (s Set256) Union(t Set256) Set256 {
	var r Set256
	for i := range s {
		r[i] = s[i] | t[i]
	}
	return r
}

// Intersect returns the set of members in both s and t.
func (s Set256) Intersect(t Set256) Set256 {
	var r Set256
	for i := range s {
		r[i] = s[i] & t[i]
	}
	return r
}

// Difference returns the set of members in s that are not in t.
func (s Set256) Difference(t Set256) Set256 {
	var r Set256
	for i := range s {
		r[i] = s[i] &^ t[i]
	}
	return r
}

// Equal reports whether s and t have identical membership.
func (s Set256) Equal(t Set256) bool {
	return s == t
}

// Members returns the members of s in ascending order.
func (s Set256) Members() []int {
	result := make([]int, 0, s.Count())
	it := s.Iter()
	for n, ok := it.Next(); ok; n, ok = it.Next() {
		result = append(result, n)
	}
	return result
}

// String renders the members in ascending order, e.g. "{3,7,12}".
func (s Set256) String() string {
	b := []byte{'{'}
	it := s.Iter()
	first := true
	for n, ok := it.Next(); ok; n, ok = it.Next() {
		if !first {
			b = append(b, ',')
		}
		b = fmt.Appendf(b, "%d", n)
		first = false
	}
	return string(append(b, '}'))
}

// Iterator yields the members of a set in ascending order. Each call to
// Set256.Iter returns a fresh iterator; iterators are not shared.
type Iterator struct {
	set  Set256
	next int
}

// Iter returns a new iterator positioned before the smallest member.
func (s Set256) Iter() *Iterator {
	return &Iterator{set: s}
}

// Next returns the next member in ascending order, or ok=false when the
// set is exhausted.
func (it *Iterator) Next() (n int, ok bool) {
	for i := it.next; i < Capacity; i++ {
		if it.set[i/64]&(1<<(uint(i)%64)) != 0 {
			it.next = i + 1
			return i, true
		}
	}
	it.next = Capacity
	return 0, false
}
