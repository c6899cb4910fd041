// Package touch describes the samples delivered by a touch-sensing surface and
// the source abstraction the weighing core subscribes to.
// The sensor driver itself lives outside this module; sources here either
// relay batches from it (MQTT), replay scripted batches (fake) or synthesize
// them (demo).
package touch

import (
	"errors"
	"math"
	"time"
)

// State is the lifecycle state of a single contact as reported by the driver.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateTouching State = "touching"
	StateEnding   State = "ending"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateStarting, StateTouching, StateEnding:
		return true
	}
	return false
}

// Position is a normalized 2-D contact position.
type Position struct {
	X float64
	Y float64
}

// Axis holds the major/minor axes of the contact ellipse.
type Axis struct {
	Major float64
	Minor float64
}

// Sample is one physical touch reading.
type Sample struct {
	ID       int
	Position Position
	Total    float64
	Pressure float64 // device units, treated as grams
	Axis     Axis
	Angle    float64
	Density  float64
	State    State
	Time     time.Time
}

// Valid reports whether the sample can be used by the weighing core.
// Malformed or out-of-range samples are treated as absent.
func (s Sample) Valid() bool {
	if !s.State.Valid() {
		return false
	}
	if math.IsNaN(s.Pressure) || math.IsInf(s.Pressure, 0) || s.Pressure < 0 {
		return false
	}
	return true
}

// Batch is every sample captured at one instant. An empty batch means no
// contact.
type Batch []Sample

// Primary returns the first sample of the batch. Later contacts are ignored,
// so an idle or invalid first sample reads as no contact.
func (b Batch) Primary() (Sample, bool) {
	if len(b) == 0 {
		return Sample{}, false
	}
	s := b[0]
	if !s.Valid() || s.State == StateIdle {
		return Sample{}, false
	}
	return s, true
}

// Device identifies a sensing surface.
type Device struct {
	ID       string
	Name     string
	BuiltIn  bool
	Selected bool
}

// ErrSourceUnavailable is returned by Subscribe when no sensing device can be
// listened to.
var ErrSourceUnavailable = errors.New("touch source unavailable")

// Subscription is a live, non-restartable sequence of batches.
// Batches is closed when the source disconnects or the subscription is closed.
type Subscription interface {
	Batches() <-chan Batch

	// Close releases the subscription. It must not wait on the device or
	// broker, and is safe to call more than once.
	Close() error
}

// Source supplies touch batches.
type Source interface {
	// Subscribe starts a fresh batch sequence. It may block while the
	// device or broker answers.
	Subscribe() (Subscription, error)

	// Devices returns the currently available sensing devices. The selected
	// device, if any, has Selected set.
	Devices() []Device
}

// SelectedDevice returns the selected device from devs.
func SelectedDevice(devs []Device) (Device, bool) {
	for _, d := range devs {
		if d.Selected {
			return d, true
		}
	}
	return Device{}, false
}
