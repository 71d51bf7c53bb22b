package watch

import (
	"context"
	"time"
)

// sleepSlice bounds each individual sleep so shutdown is observed
// promptly regardless of the configured intervals.
const sleepSlice = 200 * time.Millisecond

// sleepCtx sleeps for d in short slices, returning false as soon as the
// context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > sleepSlice {
			slice = sleepSlice
		}
		t := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}
