package logic

import (
	"math"
	"time"
)

const (
	// DefaultStabilityThreshold is the widest variation still counted as the
	// same plateau.
	DefaultStabilityThreshold = 2.0

	// DefaultStabilityDelay is how long a plateau must hold before the
	// settle timer starts.
	DefaultStabilityDelay = 1 * time.Second

	// DefaultStabilityDuration is the total stable time before a result:
	// the delay plus the settle timer.
	DefaultStabilityDuration = 3 * time.Second
)

// StabilityAction is what the caller must do after a reading.
type StabilityAction int

const (
	// StabilityNone requires no action.
	StabilityNone StabilityAction = iota
	// StabilityAnchored means the first reading after a reset set the anchor.
	StabilityAnchored
	// StabilityBroken means the plateau broke and was re-anchored. Any
	// running settle timer must be cancelled.
	StabilityBroken
	// StabilitySettle means the plateau has held past the delay and the
	// settle timer must be started.
	StabilitySettle
)

func (a StabilityAction) String() string {
	switch a {
	case StabilityNone:
		return "none"
	case StabilityAnchored:
		return "anchored"
	case StabilityBroken:
		return "broken"
	case StabilitySettle:
		return "settle"
	}
	return "unknown"
}

// StabilityTracker watches smoothed readings for a plateau.
type StabilityTracker struct {
	threshold float64
	delay     time.Duration

	anchored bool
	anchor   float64
	since    time.Time
	settling bool
}

// NewStabilityTracker creates a tracker with the given band and delay.
func NewStabilityTracker(threshold float64, delay time.Duration) *StabilityTracker {
	return &StabilityTracker{
		threshold: threshold,
		delay:     delay,
	}
}

// Observe feeds one smoothed reading taken at now.
func (s *StabilityTracker) Observe(pressure float64, now time.Time) StabilityAction {
	if !s.anchored {
		s.rearm(pressure, now)
		return StabilityAnchored
	}

	if math.Abs(pressure-s.anchor) > s.threshold {
		// No partial credit: the clock restarts from the new level.
		s.rearm(pressure, now)
		return StabilityBroken
	}

	if !s.settling && now.Sub(s.since) >= s.delay {
		s.settling = true
		return StabilitySettle
	}
	return StabilityNone
}

// Reset forgets the anchor. The next reading re-anchors.
func (s *StabilityTracker) Reset() {
	s.anchored = false
	s.anchor = 0
	s.since = time.Time{}
	s.settling = false
}

// Anchor returns the anchor pressure and when it was set.
func (s *StabilityTracker) Anchor() (pressure float64, since time.Time, ok bool) {
	return s.anchor, s.since, s.anchored
}

// Settling reports whether the settle timer has been requested and not since
// broken.
func (s *StabilityTracker) Settling() bool {
	return s.settling
}

func (s *StabilityTracker) rearm(pressure float64, now time.Time) {
	s.anchored = true
	s.anchor = pressure
	s.since = now
	s.settling = false
}
