// Package mqtt connects the scale to an MQTT broker: weighing and system
// events are published, and touch batches from the sensor driver are
// received. Interfaces abstract the broker for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/touch-scale/internal/logic"
)

// Topic is the MQTT topic for weighing events.
const Topic = "touchscale/scale/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "touchscale/scale/system"

// TopicBatches is the default topic the sensor driver publishes batches on.
const TopicBatches = "touchscale/sensor/batches"

// Publisher sends scale events to the broker.
type Publisher interface {
	// Publish sends a weighing event. Errors are reported to the caller,
	// who logs and carries on.
	Publish(event logic.Event) error

	// PublishSystem sends a daemon lifecycle event.
	PublishSystem(event SystemEvent) error

	Close() error
}

// ConnectionStatus is implemented by publishers that track the broker link.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a daemon lifecycle message on TopicSystem.
// When RawPayload is set it is published as is.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // signal name, SHUTDOWN only
	RawPayload []byte
	Retained   bool
}

// Payload is the envelope published on Topic.
type Payload struct {
	Scale ScalePayload `json:"scale"`
}

// ScalePayload carries one weighing event.
type ScalePayload struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	Session     string  `json:"session,omitempty"`
	State       string  `json:"state"`
	Pressure    float64 `json:"pressure"`
	Baseline    float64 `json:"baseline"`
	Weight      float64 `json:"weight"`
	MaxPressure float64 `json:"max_pressure"`
}

// FormatPayload encodes a weighing event for Topic.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Scale: ScalePayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:       string(event.Type),
			Session:     event.Session,
			State:       string(event.Phase),
			Pressure:    event.Pressure,
			Baseline:    event.Baseline,
			Weight:      event.Weight,
			MaxPressure: event.MaxPressure,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the short form used for the will and RECONNECTED, which
// carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes a system event for TopicSystem.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
