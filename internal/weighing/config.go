// Package weighing implements the guided weighing session: a five-state
// lifecycle driven by touch batches and timer ticks.
package weighing

import (
	"time"

	"github.com/sweeney/touch-scale/internal/logic"
	"github.com/sweeney/touch-scale/internal/ticker"
)

// Config holds the thresholds and timings of a session.
type Config struct {
	// HistorySize is the smoothing and placement window, in samples.
	HistorySize int

	// FingerHold is how long contact must be held to confirm a finger.
	FingerHold time.Duration

	// RateOfChange is the rise across a full window that counts as a
	// placement.
	RateOfChange float64

	// StabilityThreshold is the widest variation counted as one plateau.
	StabilityThreshold float64

	// StabilityDelay is how long a plateau holds before the settle timer
	// starts.
	StabilityDelay time.Duration

	// StabilityDuration is the total plateau time before a result.
	StabilityDuration time.Duration

	// TickPeriod is the progress timer rate.
	TickPeriod time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		HistorySize:        logic.DefaultHistorySize,
		FingerHold:         3 * time.Second,
		RateOfChange:       logic.DefaultRateOfChange,
		StabilityThreshold: logic.DefaultStabilityThreshold,
		StabilityDelay:     logic.DefaultStabilityDelay,
		StabilityDuration:  logic.DefaultStabilityDuration,
		TickPeriod:         ticker.DefaultPeriod,
	}
}

// SettleSpan is the settle timer length: the part of StabilityDuration
// remaining after StabilityDelay.
func (c Config) SettleSpan() time.Duration {
	return c.StabilityDuration - c.StabilityDelay
}
