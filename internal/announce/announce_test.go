package announce

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rockowitz/ddcwatch/internal/display"
	"github.com/rockowitz/ddcwatch/internal/edid"
	"github.com/rockowitz/ddcwatch/internal/watch"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeBroker struct {
	messages []published
	err      error
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, published{topic, payload, qos, retained})
	return nil
}

func (b *fakeBroker) PublishRetained(topic string, payload []byte) error {
	return b.Publish(topic, payload, 1, true)
}

func connectEvent() watch.Event {
	return watch.Event{
		Type:      watch.EventConnected,
		Connector: "card0-DP-1",
		BusNo:     3,
		Ref: &display.Ref{
			Number:     1,
			DDCWorking: true,
			EDID: &edid.EDID{
				MfgID:       "DEL",
				ModelName:   "DELL U3011",
				SerialASCII: "PXF79",
			},
		},
		Time: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAnnouncePublishesEventAndState(t *testing.T) {
	broker := &fakeBroker{}
	a := New(broker)

	if err := a.Announce(connectEvent()); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	if len(broker.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(broker.messages))
	}

	ev := broker.messages[0]
	if ev.topic != "ddcwatch/event/connected" {
		t.Errorf("event topic = %q", ev.topic)
	}
	if ev.retained {
		t.Error("event message should not be retained")
	}
	var msg eventMessage
	if err := json.Unmarshal(ev.payload, &msg); err != nil {
		t.Fatalf("decoding event payload: %v", err)
	}
	if msg.Connector != "card0-DP-1" || msg.BusNumber != 3 || msg.DisplayNumber != 1 {
		t.Errorf("event payload = %+v", msg)
	}
	if msg.ModelName != "DELL U3011" {
		t.Errorf("model name = %q", msg.ModelName)
	}
	if msg.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %q", msg.Timestamp)
	}

	st := broker.messages[1]
	if st.topic != "ddcwatch/display/card0-DP-1/state" {
		t.Errorf("state topic = %q", st.topic)
	}
	if !st.retained {
		t.Error("state message should be retained")
	}
	var state stateMessage
	if err := json.Unmarshal(st.payload, &state); err != nil {
		t.Fatalf("decoding state payload: %v", err)
	}
	if !state.Connected || !state.DdcWorking || state.Asleep {
		t.Errorf("state payload = %+v", state)
	}
}

func TestAnnounceDisconnectClearsConnected(t *testing.T) {
	broker := &fakeBroker{}
	a := New(broker)

	ev := connectEvent()
	ev.Type = watch.EventDisconnected
	ev.Ref.DDCWorking = false
	if err := a.Announce(ev); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	var state stateMessage
	if err := json.Unmarshal(broker.messages[1].payload, &state); err != nil {
		t.Fatal(err)
	}
	if state.Connected {
		t.Error("state still connected after disconnect")
	}
}

func TestAnnounceWithoutConnectorSkipsState(t *testing.T) {
	broker := &fakeBroker{}
	a := New(broker)

	ev := connectEvent()
	ev.Connector = ""
	if err := a.Announce(ev); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if len(broker.messages) != 1 {
		t.Errorf("published %d messages, want event only", len(broker.messages))
	}
}

func TestAnnounceStampsMissingTime(t *testing.T) {
	broker := &fakeBroker{}
	a := New(broker)

	ev := connectEvent()
	ev.Time = time.Time{}
	if err := a.Announce(ev); err != nil {
		t.Fatal(err)
	}

	var msg eventMessage
	if err := json.Unmarshal(broker.messages[0].payload, &msg); err != nil {
		t.Fatal(err)
	}
	stamped, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q not RFC3339: %v", msg.Timestamp, err)
	}
	if time.Since(stamped) > time.Minute {
		t.Errorf("timestamp %v not recent", stamped)
	}
}

func TestSubscriberReportsErrors(t *testing.T) {
	broker := &fakeBroker{err: errors.New("broker down")}
	a := New(broker)

	var got error
	sub := a.Subscriber(func(err error) { got = err })
	sub(connectEvent())

	if got == nil {
		t.Fatal("publish failure not reported")
	}
}
