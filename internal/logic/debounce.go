package logic

import "time"

// Button identifies an operator push button.
type Button string

const (
	ButtonZero    Button = "ZERO"
	ButtonRestart Button = "RESTART"
)

// ButtonInput is a single sample of both buttons.
type ButtonInput struct {
	Zero    bool // true = pressed (already inverted from raw GPIO)
	Restart bool
	Time    time.Time
}

// LineState tracks debounce state for a single input line.
type LineState struct {
	// Current stable (debounced) level
	Stable bool
	// Pending level during debounce
	Pending bool
	// Whether a pending level is being observed
	HasPending bool
	// Time when pending level was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// ButtonDetector debounces both buttons and reports presses.
type ButtonDetector struct {
	debounceDuration time.Duration
	zero             LineState
	restart          LineState
	baselined        bool
}

// NewButtonDetector creates a detector with the given debounce duration.
func NewButtonDetector(debounceDuration time.Duration) *ButtonDetector {
	return &ButtonDetector{debounceDuration: debounceDuration}
}

// Process takes a new sample and returns the buttons that were pressed.
// A press is a debounced released-to-pressed edge; releases are not reported.
// Nothing is reported until both lines have a baseline, so a button held
// at startup does not fire.
func (d *ButtonDetector) Process(input ButtonInput) []Button {
	zeroEdge := d.processLine(&d.zero, input.Zero, input.Time)
	restartEdge := d.processLine(&d.restart, input.Restart, input.Time)

	if !d.baselined {
		if d.zero.Baselined && d.restart.Baselined {
			d.baselined = true
		}
		return nil
	}

	var pressed []Button
	if zeroEdge && d.zero.Stable {
		pressed = append(pressed, ButtonZero)
	}
	if restartEdge && d.restart.Stable {
		pressed = append(pressed, ButtonRestart)
	}
	return pressed
}

// processLine handles debounce logic for a single line.
// Returns true if the stable level changed.
func (d *ButtonDetector) processLine(l *LineState, level bool, now time.Time) bool {
	if !l.Baselined {
		if !l.HasPending || l.Pending != level {
			l.Pending = level
			l.HasPending = true
			l.PendingSince = now
			return false
		}
		if now.Sub(l.PendingSince) >= d.debounceDuration {
			l.Stable = level
			l.Baselined = true
			l.HasPending = false
		}
		return false
	}

	if level == l.Stable {
		l.HasPending = false
		return false
	}

	if !l.HasPending || l.Pending != level {
		l.Pending = level
		l.HasPending = true
		l.PendingSince = now
		return false
	}

	if now.Sub(l.PendingSince) >= d.debounceDuration {
		l.Stable = level
		l.HasPending = false
		return true
	}
	return false
}

// IsBaselined returns whether both lines have a baseline.
func (d *ButtonDetector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the stable level of each button.
func (d *ButtonDetector) CurrentState() (zero, restart bool) {
	return d.zero.Stable, d.restart.Stable
}
