package watch

import (
	"testing"
)

func TestDispatchRegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Subscribe(func(Event) { order = append(order, "first") })
	d.Subscribe(func(Event) { order = append(order, "second") })
	d.Subscribe(func(Event) { order = append(order, "third") })

	d.Dispatch(Event{Type: EventConnected})

	want := []string{"first", "second", "third"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", order, want)
		}
	}
}

func TestDeferredQueueFIFO(t *testing.T) {
	d := NewDispatcher()
	var got []EventType
	d.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	var q deferredQueue
	q.push(Event{Type: EventDisconnected})
	q.push(Event{Type: EventConnected})
	q.push(Event{Type: EventDdcEnabled})
	q.flush(d)

	want := []EventType{EventDisconnected, EventConnected, EventDdcEnabled}
	if len(got) != len(want) {
		t.Fatalf("flushed %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}

	// Queue is reusable after flush.
	q.push(Event{Type: EventDpmsAsleep})
	q.flush(d)
	if len(got) != 4 || got[3] != EventDpmsAsleep {
		t.Errorf("reused queue delivered %v", got)
	}
}

func TestPushStampsTime(t *testing.T) {
	var q deferredQueue
	q.push(Event{Type: EventConnected})
	if q.events[0].Time.IsZero() {
		t.Error("push did not stamp event time")
	}
}
