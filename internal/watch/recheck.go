package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rockowitz/ddcwatch/internal/ddc"
	"github.com/rockowitz/ddcwatch/internal/display"
)

// recheckRounds is the number of probe rounds before a display is given
// up on. Round n sleeps interval * 2^n first.
const recheckRounds = 4

// Recheck confirms DDC communication on displays that were detected but
// did not answer immediately. It runs on its own goroutine; registry
// mutations take the engine's process-event lock so number assignment
// stays totally ordered.
type Recheck struct {
	interval   time.Duration
	reg        *display.Registry
	checker    ddc.Checker
	dispatcher *Dispatcher
	processMu  *sync.Mutex
	logger     Logger

	mu    sync.Mutex
	queue []*display.Ref
	wake  chan struct{}
}

func newRecheck(interval time.Duration, reg *display.Registry, checker ddc.Checker,
	dispatcher *Dispatcher, processMu *sync.Mutex, logger Logger) *Recheck {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recheck{
		interval:   interval,
		reg:        reg,
		checker:    checker,
		dispatcher: dispatcher,
		processMu:  processMu,
		logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue adds a display reference to the recheck queue. The same Ref
// is shared with the registry; only its flags and number are mutated.
func (rc *Recheck) Enqueue(ref *display.Ref) {
	rc.mu.Lock()
	for _, r := range rc.queue {
		if r == ref {
			rc.mu.Unlock()
			return
		}
	}
	rc.queue = append(rc.queue, ref)
	rc.mu.Unlock()

	select {
	case rc.wake <- struct{}{}:
	default:
	}
	rc.logger.Debug("display queued for recheck", "ref", ref.String())
}

// Run drains the queue in bounded rounds until the context is
// cancelled. A batch that never confirms is dropped with a diagnostic;
// this outcome is terminal but non-fatal, and is never surfaced to API
// callers because the display was never published.
func (rc *Recheck) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-rc.wake:
		}
		rc.drain(ctx)
	}
}

// drain runs up to recheckRounds probe rounds over the refs queued at
// entry. References enqueued while a drain is in flight stay on the
// queue for their own full set of rounds; their Enqueue left a wake
// token behind, so another drain follows immediately.
func (rc *Recheck) drain(ctx context.Context) {
	rc.mu.Lock()
	batch := rc.queue
	rc.queue = nil
	rc.mu.Unlock()

	for round := 0; round < recheckRounds && len(batch) > 0; round++ {
		if !sleepCtx(ctx, rc.interval<<round) {
			return
		}
		batch = rc.processRound(batch)
	}

	for _, ref := range batch {
		rc.logger.Warn("display never confirmed DDC communication, giving up",
			"ref", ref.String(), "rounds", recheckRounds)
	}
}

func (rc *Recheck) pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.queue)
}

// processRound probes every reference in the batch once and returns
// the refs still unresolved. Successes get the next display number and
// a ddc_enabled event; disconnected probes mark the reference removed;
// other failures are kept for the next round.
func (rc *Recheck) processRound(batch []*display.Ref) []*display.Ref {
	var events []Event
	var keep []*display.Ref

	for _, ref := range batch {
		err := rc.checker.Confirm(ref.BusNo)

		rc.processMu.Lock()
		switch {
		case ref.Removed():
			// A hotplug iteration removed it while we slept.
		case ref.Phantom():
			// Resolved as a duplicate while queued; promoting it would
			// publish the same monitor twice.
		case err == nil:
			rc.reg.PromoteConfirmed(ref)
			events = append(events, Event{
				Type: EventDdcEnabled, Connector: ref.Connector,
				BusNo: ref.BusNo, Ref: ref, Time: time.Now(),
			})
			rc.logger.Info("ddc communication confirmed", "ref", ref.String())
		case errors.Is(err, ddc.ErrDisconnected):
			rc.reg.MarkRemoved(ref)
			events = append(events, Event{
				Type: EventDisconnected, Connector: ref.Connector,
				BusNo: ref.BusNo, Ref: ref, Time: time.Now(),
			})
			rc.logger.Info("display disconnected during recheck", "ref", ref.String())
		default:
			keep = append(keep, ref)
		}
		rc.processMu.Unlock()
	}

	for _, ev := range events {
		rc.dispatcher.Dispatch(ev)
	}
	return keep
}
