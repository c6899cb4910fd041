// Package gpio reads the operator push buttons wired to the Pi header.
// The real implementation uses the Linux GPIO character device; the fake
// replays scripted presses for tests.
package gpio

// Buttons is one reading of both push buttons, already in logical form.
type Buttons struct {
	Zero    bool // true = pressed
	Restart bool
}

// Reader reads the push buttons.
type Reader interface {
	// Read returns the logical button states. Buttons pull the line to
	// ground, so raw inactive = pressed.
	Read() (Buttons, error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinZero    = 26
	PinRestart = 16
)
