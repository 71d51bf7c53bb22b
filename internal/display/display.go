// Package display holds the registry of logical display references.
//
// A Ref is the stable handle the rest of the system uses for one
// monitor. Refs live for the whole process: a monitor that goes away is
// marked removed, never deallocated, because callers may still hold the
// pointer. Display numbers are renumbered whenever the valid set
// changes, so callers must not cache numbers across hotplug events.
package display

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rockowitz/ddcwatch/internal/edid"
	"github.com/rockowitz/ddcwatch/internal/i2cbus"
)

// Display number sentinels. Positive numbers are valid assigned
// displays.
const (
	NumberInvalid = -1 // created but communication not yet confirmed
	NumberPhantom = -2 // duplicate of another ref, see Ref.Actual
	NumberRemoved = -3 // monitor gone; ref retained for stale handles
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Ref is one logical display reference.
//
// Identity fields (Tag, BusNo, Connector, EDID) are set at creation and
// never change. State fields (Number, Actual, DDCWorking) are mutated
// only through Registry methods, under the registry lock, so reads
// through the registry never race hotplug processing.
type Ref struct {
	// Tag is a process-unique monotonic id, stable for the ref's life.
	Tag int

	// BusNo is the I2C bus the monitor was reached on.
	BusNo int

	// Connector is the DRM connector name at creation time.
	Connector string

	// Bus is the backing inventory record. Never nil.
	Bus *i2cbus.BusInfo

	// EDID is the identity block read at creation time.
	EDID *edid.EDID

	// Number is the assigned display number or a sentinel.
	Number int

	// Actual points to the real display this ref duplicates. Set only
	// while Number == NumberPhantom.
	Actual *Ref

	// DDCWorking is set once a DDC probe has succeeded.
	DDCWorking bool

	// Transient marks refs that must not be published to callers.
	Transient bool
}

// Valid reports whether the ref has an assigned display number.
func (r *Ref) Valid() bool { return r.Number > 0 }

// Phantom reports whether the ref was classified as a duplicate.
func (r *Ref) Phantom() bool { return r.Number == NumberPhantom }

// Removed reports whether the ref's monitor is gone.
func (r *Ref) Removed() bool { return r.Number == NumberRemoved }

// String renders a compact identity for logs.
func (r *Ref) String() string {
	return fmt.Sprintf("dref[%d] bus=%d conn=%s num=%d", r.Tag, r.BusNo, r.Connector, r.Number)
}

// Registry is the process-wide set of display references.
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	refs    []*Ref
	nextTag int
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nextTag: 1, logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (reg *Registry) SetLogger(logger Logger) {
	reg.logger = logger
}

// Add constructs and registers a new Ref for a bus that gained an
// identity block. A non-removed ref already existing for the bus is a
// program logic error: the registry would be corrupt, so Add panics
// after logging.
func (reg *Registry) Add(bi *i2cbus.BusInfo) *Ref {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, r := range reg.refs {
		if r.BusNo == bi.BusNo && !r.Removed() {
			reg.logger.Error("duplicate display reference", "bus", bi.BusNo, "existing", r.String())
			panic(fmt.Sprintf("display: duplicate non-removed ref for bus %d", bi.BusNo))
		}
	}

	r := &Ref{
		Tag:       reg.nextTag,
		BusNo:     bi.BusNo,
		Connector: bi.Connector,
		Bus:       bi,
		EDID:      bi.EDID,
		Number:    NumberInvalid,
	}
	reg.nextTag++
	reg.refs = append(reg.refs, r)
	reg.logger.Info("display reference created", "ref", r.String())
	return r
}

// FindByBus returns the non-removed ref for a bus number.
func (reg *Registry) FindByBus(busno int) (*Ref, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, r := range reg.refs {
		if r.BusNo == busno && !r.Removed() {
			return r, true
		}
	}
	return nil, false
}

// FindByNumber returns the ref holding a positive display number.
func (reg *Registry) FindByNumber(n int) (*Ref, bool) {
	if n <= 0 {
		return nil, false
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, r := range reg.refs {
		if r.Number == n {
			return r, true
		}
	}
	return nil, false
}

// FindByIdentity returns the first non-removed ref whose EDID identity
// fields match.
func (reg *Registry) FindByIdentity(mfg, model, serial string) (*Ref, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, r := range reg.refs {
		if r.Removed() || r.EDID == nil {
			continue
		}
		if r.EDID.MfgID == mfg && r.EDID.ModelName == model && r.EDID.SerialASCII == serial {
			return r, true
		}
	}
	return nil, false
}

// FindByRawEDID returns the first non-removed ref with a byte-identical
// identity block.
func (reg *Registry) FindByRawEDID(raw [edid.BlockSize]byte) (*Ref, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, r := range reg.refs {
		if !r.Removed() && r.EDID != nil && r.EDID.Raw == raw {
			return r, true
		}
	}
	return nil, false
}

// MarkRemoved flags a ref as removed. Idempotent; the ref is never
// deallocated.
//
// Phantoms whose Actual was this ref are reset to the unconfirmed
// state and returned so the caller can re-resolve or re-probe them; a
// phantom must never point at a removed display, and its monitor may
// now be reachable only through the phantom's own path.
func (reg *Registry) MarkRemoved(r *Ref) []*Ref {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r.Removed() {
		return nil
	}
	r.Number = NumberRemoved
	r.Actual = nil
	r.DDCWorking = false
	reg.logger.Info("display reference removed", "ref", r.String())

	var orphans []*Ref
	for _, p := range reg.refs {
		if p.Phantom() && p.Actual == r {
			p.Number = NumberInvalid
			p.Actual = nil
			orphans = append(orphans, p)
			reg.logger.Info("phantom reference released", "ref", p.String())
		}
	}
	return orphans
}

// SetDDCWorking records a DDC probe outcome.
func (reg *Registry) SetDDCWorking(r *Ref, working bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r.DDCWorking = working
}

// PromoteConfirmed marks a ref working and assigns it the next free
// display number in one step. Used on the recheck path, where already
// assigned numbers must not shift.
func (reg *Registry) PromoteConfirmed(r *Ref) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r.DDCWorking = true
	r.Number = reg.nextNumberLocked()
}

// markPhantom links a duplicate ref to the display it shadows.
func (reg *Registry) markPhantom(r, actual *Ref) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r.Number = NumberPhantom
	r.Actual = actual
}

// Renumber reassigns sequential positive display numbers to the refs
// that are non-removed, non-phantom, and confirmed working, ordered by
// bus number ascending. Numbers are stable until the next add/remove
// cycle; callers must not cache them across hotplug events.
func (reg *Registry) Renumber() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	eligible := make([]*Ref, 0, len(reg.refs))
	for _, r := range reg.refs {
		if !r.Removed() && !r.Phantom() && r.DDCWorking {
			eligible = append(eligible, r)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].BusNo < eligible[j].BusNo
	})
	for i, r := range eligible {
		r.Number = i + 1
	}
}

// NextNumber returns one past the highest assigned display number.
func (reg *Registry) NextNumber() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.nextNumberLocked()
}

func (reg *Registry) nextNumberLocked() int {
	max := 0
	for _, r := range reg.refs {
		if r.Number > max {
			max = r.Number
		}
	}
	return max + 1
}

// ListValid returns the refs with assigned display numbers, ordered by
// number.
func (reg *Registry) ListValid() []*Ref {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var valid []*Ref
	for _, r := range reg.refs {
		if r.Valid() && !r.Transient {
			valid = append(valid, r)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Number < valid[j].Number })
	return valid
}

// All returns a snapshot of every ref ever registered, including
// removed ones.
func (reg *Registry) All() []*Ref {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Ref, len(reg.refs))
	copy(out, reg.refs)
	return out
}
