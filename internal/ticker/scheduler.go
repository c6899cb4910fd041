// Package ticker provides the cancellable periodic timer used to animate
// dwell and stability progress.
package ticker

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPeriod is the nominal tick rate, ~60 Hz.
const DefaultPeriod = time.Second / 60

// Task is a unit of timed work: it ticks with its progress until Span has
// elapsed since it started, then completes.
type Task struct {
	// Name is used in logs and by Active.
	Name string

	// Span is the time from start to completion.
	Span time.Duration

	// OnTick receives progress in [0, 1] on every tick, including the
	// final one.
	OnTick func(progress float64)

	// OnDone runs once, after the final tick, unless the task was cancelled
	// or replaced first.
	OnDone func()
}

// Scheduler runs at most one Task at a time.
//
// A Scheduler is not safe for concurrent use. Its owner selects on C() and
// calls Fire on every receive, from the same goroutine that calls Start and
// Cancel. Because C() reflects the current task, a tick of a cancelled task is
// never delivered.
type Scheduler struct {
	clock  clockwork.Clock
	period time.Duration
	active *handle
}

type handle struct {
	task   Task
	start  time.Time
	ticker clockwork.Ticker
}

// NewScheduler creates a scheduler ticking every period on clock.
func NewScheduler(clock clockwork.Clock, period time.Duration) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Scheduler{
		clock:  clock,
		period: period,
	}
}

// Start cancels any active task and starts task.
func (s *Scheduler) Start(task Task) {
	s.Cancel()
	s.active = &handle{
		task:   task,
		start:  s.clock.Now(),
		ticker: s.clock.NewTicker(s.period),
	}
}

// Cancel stops the active task without running OnDone. Safe to call when
// idle.
func (s *Scheduler) Cancel() {
	if s.active == nil {
		return
	}
	s.active.ticker.Stop()
	s.active = nil
}

// Active returns the name of the running task.
func (s *Scheduler) Active() (string, bool) {
	if s.active == nil {
		return "", false
	}
	return s.active.task.Name, true
}

// C returns the tick channel of the active task, or nil when idle. A nil
// channel blocks forever in a select.
func (s *Scheduler) C() <-chan time.Time {
	if s.active == nil {
		return nil
	}
	return s.active.ticker.Chan()
}

// Fire advances the active task. Progress is measured from the task's own
// start on the clock, so late or dropped ticks do not accumulate drift.
func (s *Scheduler) Fire() {
	h := s.active
	if h == nil {
		return
	}

	progress := Progress(s.clock.Now().Sub(h.start), h.task.Span)
	if h.task.OnTick != nil {
		h.task.OnTick(progress)
	}
	if progress < 1 {
		return
	}

	// OnTick may have cancelled or replaced the task.
	if s.active != h {
		return
	}
	s.Cancel()
	if h.task.OnDone != nil {
		h.task.OnDone()
	}
}

// Progress returns elapsed/span clamped to [0, 1]. A non-positive span is
// complete immediately.
func Progress(elapsed, span time.Duration) float64 {
	if span <= 0 {
		return 1
	}
	p := float64(elapsed) / float64(span)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
