// Package announce publishes display status changes to MQTT so other
// services can react to monitor hotplug without touching the I2C buses
// themselves. Every event goes out on a transient event topic, and each
// connector additionally carries a retained state topic that late
// subscribers read to learn the current state.
package announce

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rockowitz/ddcwatch/internal/infrastructure/mqtt"
	"github.com/rockowitz/ddcwatch/internal/watch"
)

const eventQoS = 1

// Broker is the subset of the MQTT client the announcer needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// eventMessage is the wire form of one display status event.
type eventMessage struct {
	Type          string `json:"type"`
	Connector     string `json:"connector,omitempty"`
	BusNumber     int    `json:"bus_number"`
	DisplayNumber int    `json:"display_number"`
	MfgID         string `json:"mfg_id,omitempty"`
	ModelName     string `json:"model_name,omitempty"`
	SerialASCII   string `json:"serial_ascii,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// stateMessage is the retained per-connector state document.
type stateMessage struct {
	Connected     bool   `json:"connected"`
	Asleep        bool   `json:"asleep"`
	DdcWorking    bool   `json:"ddc_working"`
	Connector     string `json:"connector"`
	BusNumber     int    `json:"bus_number"`
	DisplayNumber int    `json:"display_number"`
	MfgID         string `json:"mfg_id,omitempty"`
	ModelName     string `json:"model_name,omitempty"`
	SerialASCII   string `json:"serial_ascii,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

// Announcer translates watch events into MQTT publishes.
type Announcer struct {
	broker Broker
	topics mqtt.Topics
}

// New creates an announcer over a connected broker client.
func New(broker Broker) *Announcer {
	return &Announcer{broker: broker}
}

// Announce publishes one event and refreshes the connector's retained
// state topic.
func (a *Announcer) Announce(ev watch.Event) error {
	msg := messageFromEvent(ev)
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := a.broker.Publish(a.topics.Event(msg.Type), payload, eventQoS, false); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	if ev.Connector == "" {
		return nil
	}
	state, err := json.Marshal(stateFromEvent(ev, msg))
	if err != nil {
		return fmt.Errorf("encoding display state: %w", err)
	}
	if err := a.broker.PublishRetained(a.topics.DisplayState(ev.Connector), state); err != nil {
		return fmt.Errorf("publishing display state: %w", err)
	}
	return nil
}

// Subscriber returns a callback suitable for watch.Dispatcher.Subscribe.
// Publish failures are reported through errFn rather than surfaced to
// the watch loop.
func (a *Announcer) Subscriber(errFn func(error)) func(watch.Event) {
	return func(ev watch.Event) {
		if err := a.Announce(ev); err != nil && errFn != nil {
			errFn(err)
		}
	}
}

func messageFromEvent(ev watch.Event) eventMessage {
	msg := eventMessage{
		Type:          string(ev.Type),
		Connector:     ev.Connector,
		BusNumber:     ev.BusNo,
		DisplayNumber: -1,
		Timestamp:     ev.Time.UTC().Format(time.RFC3339),
	}
	if ev.Time.IsZero() {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if ev.Ref != nil {
		msg.DisplayNumber = ev.Ref.Number
		if ev.Ref.EDID != nil {
			msg.MfgID = ev.Ref.EDID.MfgID
			msg.ModelName = ev.Ref.EDID.ModelName
			msg.SerialASCII = ev.Ref.EDID.SerialASCII
		}
	}
	return msg
}

func stateFromEvent(ev watch.Event, msg eventMessage) stateMessage {
	state := stateMessage{
		Connected:     ev.Type != watch.EventDisconnected,
		Asleep:        ev.Type == watch.EventDpmsAsleep,
		Connector:     ev.Connector,
		BusNumber:     ev.BusNo,
		DisplayNumber: msg.DisplayNumber,
		MfgID:         msg.MfgID,
		ModelName:     msg.ModelName,
		SerialASCII:   msg.SerialASCII,
		UpdatedAt:     msg.Timestamp,
	}
	if ev.Ref != nil {
		state.DdcWorking = ev.Ref.DDCWorking
	}
	return state
}
