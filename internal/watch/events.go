package watch

import (
	"sync"
	"time"

	"github.com/rockowitz/ddcwatch/internal/display"
)

// EventType classifies a display status change.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventDdcEnabled   EventType = "ddc_enabled"
	EventDpmsAsleep   EventType = "dpms_asleep"
	EventDpmsAwake    EventType = "dpms_awake"
)

// Event is one display status change. Ref is the stable handle for the
// affected display and remains usable after the display is removed.
type Event struct {
	Type      EventType
	Connector string
	BusNo     int
	Ref       *display.Ref
	Time      time.Time
}

// Dispatcher fans events out to registered subscribers in registration
// order. Subscribers must return quickly and must not call back into
// hotplug processing; dispatch happens outside the engine's per-iteration
// critical section.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []func(Event)
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers a callback for all future events.
func (d *Dispatcher) Subscribe(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
}

// Dispatch delivers one event to every subscriber in registration order.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// deferredQueue collects events during one change-detection iteration
// and releases them in insertion order once the iteration's registry
// updates are complete.
type deferredQueue struct {
	events []Event
}

// push appends an event, stamping it if the caller did not.
func (q *deferredQueue) push(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	q.events = append(q.events, ev)
}

// flush delivers every queued event in insertion order and empties the
// queue.
func (q *deferredQueue) flush(d *Dispatcher) {
	for _, ev := range q.events {
		d.Dispatch(ev)
	}
	q.events = q.events[:0]
}
