// Package watch implements the display hotplug and state watch engine.
//
// One watcher goroutine runs the change-detection loop, one recheck
// goroutine confirms DDC on newly seen displays, and caller goroutines
// read the registry concurrently. A single process-event mutex
// serializes each change-detection iteration end to end, so a reader
// never observes a half-updated registry. Events are dispatched after
// the mutex is released, in discovery order: removals before additions,
// deferred events in strict insertion order.
package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rockowitz/ddcwatch/internal/bitset"
	"github.com/rockowitz/ddcwatch/internal/ddc"
	"github.com/rockowitz/ddcwatch/internal/display"
	"github.com/rockowitz/ddcwatch/internal/i2cbus"
)

// Logger defines the logging interface used by the watch engine.
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

// Config carries the watch engine tuning knobs.
type Config struct {
	// PollInterval is the base loop interval.
	PollInterval time.Duration

	// ExtraStabilization is slept once before sampling when a bus lost
	// its EDID, to dodge monitors that disconnect and reconnect within
	// a few seconds.
	ExtraStabilization time.Duration

	// StabilizationPoll is the interval between stabilization samples.
	StabilizationPoll time.Duration

	// MaxStabilizationSamples caps the stabilization loop; 0 means
	// unbounded.
	MaxStabilizationSamples int

	// StabilizeOnAdd runs stabilization for additions as well.
	StabilizeOnAdd bool

	// PhantomDetection enables duplicate-display resolution.
	PhantomDetection bool

	// RecheckInterval is the recheck scheduler's base interval.
	RecheckInterval time.Duration

	// WatchDPMS samples per-display power state each iteration.
	WatchDPMS bool
}

// Engine is the change-detection and stabilization core.
type Engine struct {
	cfg        Config
	inv        *i2cbus.Inventory
	reg        *display.Registry
	attrs      display.ConnectorAttrs
	checker    ddc.Checker
	dispatcher *Dispatcher
	recheck    *Recheck
	logger     Logger

	// mu is the process-event lock. It serializes one change-detection
	// iteration end to end, including recheck promotions.
	mu           sync.Mutex
	prevAttached bitset.Set256
	prevWithEDID bitset.Set256

	suspended atomic.Bool
}

// NewEngine wires the engine to its collaborators. The recheck
// scheduler shares the engine's process-event lock so display number
// assignment is totally ordered.
func NewEngine(cfg Config, inv *i2cbus.Inventory, reg *display.Registry,
	attrs display.ConnectorAttrs, checker ddc.Checker,
	dispatcher *Dispatcher, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	e := &Engine{
		cfg:        cfg,
		inv:        inv,
		reg:        reg,
		attrs:      attrs,
		checker:    checker,
		dispatcher: dispatcher,
		logger:     logger,
	}
	e.recheck = newRecheck(cfg.RecheckInterval, reg, checker, dispatcher, &e.mu, logger)
	return e
}

// Recheck returns the engine's recheck scheduler, for running it on its
// own goroutine.
func (e *Engine) Recheck() *Recheck {
	return e.recheck
}

// SetSuspended pauses or resumes hotplug processing across system
// sleep, so the transient disconnects DRM reports during suspend are
// not acted on.
func (e *Engine) SetSuspended(v bool) {
	e.suspended.Store(v)
	e.logger.Info("watch processing suspended state changed", "suspended", v)
}

// InitialDetection builds the starting registry: every bus with an
// identity block gets a display reference, a DDC probe, and a number.
// No events are emitted; the result is the baseline later iterations
// diff against.
func (e *Engine) InitialDetection(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	attached, err := e.inv.EnumerateAttached()
	if err != nil {
		return err
	}
	withEDID := e.inv.FilterWithEDID(attached)

	it := withEDID.Iter()
	for busno, ok := it.Next(); ok; busno, ok = it.Next() {
		bi := e.inv.GetOrCreate(busno)
		ref := e.reg.Add(bi)
		if err := e.checker.Confirm(busno); err == nil {
			e.reg.SetDDCWorking(ref, true)
		} else {
			e.logger.Debug("initial ddc probe failed", "bus", busno, "error", err)
			e.recheck.Enqueue(ref)
		}
	}

	if e.cfg.PhantomDetection {
		display.ResolvePhantoms(e.reg, e.attrs, e.logger)
	}
	e.reg.Renumber()

	e.prevAttached = attached
	e.prevWithEDID = withEDID
	e.logger.Info("initial detection complete",
		"attached", attached.String(), "with_edid", withEDID.String(),
		"displays", len(e.reg.ListValid()))
	return nil
}

// Run is the watcher loop. Each pass blocks on the event source for up
// to the poll interval, then performs one change-detection iteration.
func (e *Engine) Run(ctx context.Context, src Source) {
	e.logger.Info("watch loop starting", "source", src.Name(),
		"poll_interval", e.cfg.PollInterval)
	for {
		src.Wait(ctx, e.cfg.PollInterval)
		if ctx.Err() != nil {
			e.logger.Info("watch loop stopping")
			return
		}
		if e.suspended.Load() {
			continue
		}
		e.ProcessIteration(ctx)
	}
}

// ProcessIteration performs one full change-detection pass. Registry
// updates happen under the process-event lock; accumulated events are
// dispatched after it is released.
func (e *Engine) ProcessIteration(ctx context.Context) {
	var q deferredQueue

	e.mu.Lock()
	e.processLocked(ctx, &q)
	e.mu.Unlock()

	q.flush(e.dispatcher)
}

// processLocked is the body of one iteration. Steady state performs two
// bitset snapshots and two compares; nothing is allocated until a
// change is detected.
func (e *Engine) processLocked(ctx context.Context, q *deferredQueue) {
	attached, err := e.inv.EnumerateAttached()
	if err != nil {
		e.logger.Error("bus enumeration failed", "error", err)
		return
	}
	withEDID := e.inv.FilterWithEDID(attached)

	removed := e.prevWithEDID.Difference(withEDID)
	added := withEDID.Difference(e.prevWithEDID)

	if !removed.IsEmpty() || (e.cfg.StabilizeOnAdd && !added.IsEmpty()) {
		withEDID = e.stabilize(ctx, attached, withEDID, !removed.IsEmpty())
		removed = e.prevWithEDID.Difference(withEDID)
		added = withEDID.Difference(e.prevWithEDID)
	}

	if !removed.IsEmpty() || !added.IsEmpty() {
		e.logger.Info("display change detected",
			"removed", removed.String(), "added", added.String())
		e.handleChange(removed, added, attached, q)
	}

	if e.cfg.WatchDPMS {
		e.sampleDPMS(withEDID, q)
	}

	e.prevAttached = attached
	e.prevWithEDID = withEDID
}

// stabilize re-samples the has-EDID set until two consecutive samples
// agree. On removal an extra settle delay runs first. The loop is
// bounded by MaxStabilizationSamples when configured; hitting the cap
// logs a warning and accepts the last sample.
func (e *Engine) stabilize(ctx context.Context, attached, current bitset.Set256, removal bool) bitset.Set256 {
	if removal && e.cfg.ExtraStabilization > 0 {
		if !sleepCtx(ctx, e.cfg.ExtraStabilization) {
			return current
		}
	}

	prev := current
	samples := 1
	for {
		if !sleepCtx(ctx, e.cfg.StabilizationPoll) {
			return prev
		}
		cur := e.inv.FilterWithEDID(attached)
		samples++
		if cur.Equal(prev) {
			e.logger.Debug("stabilized", "samples", samples, "with_edid", cur.String())
			return cur
		}
		if e.cfg.MaxStabilizationSamples > 0 && samples >= e.cfg.MaxStabilizationSamples {
			e.logger.Warn("stabilization sample cap reached, accepting last sample",
				"samples", samples, "with_edid", cur.String())
			return cur
		}
		prev = cur
	}
}

// handleChange applies one stabilized removed/added pair to the bus
// inventory and display registry, queueing events in discovery order.
func (e *Engine) handleChange(removed, added, attached bitset.Set256, q *deferredQueue) bool {
	produced := false

	it := removed.Iter()
	for busno, ok := it.Next(); ok; busno, ok = it.Next() {
		ref, found := e.reg.FindByBus(busno)
		if !found {
			e.logger.Warn("removed bus had no display reference", "bus", busno)
			continue
		}
		orphans := e.reg.MarkRemoved(ref)
		q.push(Event{Type: EventDisconnected, Connector: ref.Connector, BusNo: busno, Ref: ref})
		produced = true

		// Phantoms that shadowed the removed display are back in play:
		// confirmed ones regain a number in the renumber below, the rest
		// go through the recheck path again.
		for _, o := range orphans {
			if !o.DDCWorking {
				e.recheck.Enqueue(o)
			}
		}

		if !attached.Contains(busno) {
			// Device node gone entirely, not merely a lost EDID.
			e.inv.Discard(busno)
		} else {
			// EDID lost while the node remains: the DRM topology may
			// have rebound the bus, so drop the cached connector
			// mapping and re-resolve it on the next pass.
			e.inv.ForgetConnector(busno)
		}
	}

	it = added.Iter()
	for busno, ok := it.Next(); ok; busno, ok = it.Next() {
		bi := e.inv.GetOrCreate(busno)
		ref := e.reg.Add(bi)
		if err := e.checker.Confirm(busno); err == nil {
			e.reg.SetDDCWorking(ref, true)
		} else if errors.Is(err, ddc.ErrDisconnected) {
			e.logger.Debug("added bus probe found no device", "bus", busno, "error", err)
		}
		if !ref.Transient {
			q.push(Event{Type: EventConnected, Connector: ref.Connector, BusNo: busno, Ref: ref})
			produced = true
		}
		if !ref.DDCWorking {
			e.recheck.Enqueue(ref)
		}
	}

	if e.cfg.PhantomDetection {
		display.ResolvePhantoms(e.reg, e.attrs, e.logger)
	}
	e.reg.Renumber()
	return produced
}

// sampleDPMS compares each identified bus's power state against the
// last sample and queues sleep/wake transitions.
func (e *Engine) sampleDPMS(withEDID bitset.Set256, q *deferredQueue) {
	it := withEDID.Iter()
	for busno, ok := it.Next(); ok; busno, ok = it.Next() {
		bi, found := e.inv.Get(busno)
		if !found || bi.Connector == "" {
			continue
		}
		dpms, ok := e.attrs.Attr(bi.Connector, "dpms")
		if !ok {
			continue
		}
		asleep := dpms != "On"
		if asleep == bi.Asleep {
			continue
		}
		bi.Asleep = asleep
		ref, _ := e.reg.FindByBus(busno)
		typ := EventDpmsAwake
		if asleep {
			typ = EventDpmsAsleep
		}
		q.push(Event{Type: typ, Connector: bi.Connector, BusNo: busno, Ref: ref})
	}
}
