package ticker

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// requireTickers fails unless clock has exactly n live tickers.
func requireTickers(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		clock.BlockUntil(n)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected %d live tickers", n)
	}
}

type recorder struct {
	ticks []float64
	done  int
}

func (r *recorder) task(name string, span time.Duration) Task {
	return Task{
		Name:   name,
		Span:   span,
		OnTick: func(p float64) { r.ticks = append(r.ticks, p) },
		OnDone: func() { r.done++ },
	}
}

func TestSchedulerIdle(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClockAt(epoch), DefaultPeriod)

	if s.C() != nil {
		t.Error("idle scheduler should have nil channel")
	}
	if _, ok := s.Active(); ok {
		t.Error("idle scheduler should have no active task")
	}
	s.Fire()   // no-op
	s.Cancel() // idempotent
	s.Cancel()
}

func TestSchedulerProgressAndCompletion(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewScheduler(clock, DefaultPeriod)
	var r recorder

	s.Start(r.task("dwell", 3*time.Second))
	if name, ok := s.Active(); !ok || name != "dwell" {
		t.Fatalf("expected dwell active, got %q (%v)", name, ok)
	}
	requireTickers(t, clock, 1)

	clock.Advance(1500 * time.Millisecond)
	s.Fire()
	clock.Advance(1499 * time.Millisecond)
	s.Fire()
	if r.done != 0 {
		t.Fatal("completed before span elapsed")
	}
	clock.Advance(time.Millisecond)
	s.Fire()

	want := []float64{0.5, 2999.0 / 3000.0, 1}
	if len(r.ticks) != len(want) {
		t.Fatalf("expected %d ticks, got %v", len(want), r.ticks)
	}
	for i := range want {
		if r.ticks[i] != want[i] {
			t.Errorf("tick %d: got %v, want %v", i, r.ticks[i], want[i])
		}
	}
	if r.done != 1 {
		t.Errorf("expected OnDone once, got %d", r.done)
	}
	if _, ok := s.Active(); ok {
		t.Error("task should not be active after completion")
	}
	requireTickers(t, clock, 0)

	// Residual fire after completion does nothing.
	s.Fire()
	if r.done != 1 || len(r.ticks) != 3 {
		t.Error("fire after completion should be a no-op")
	}
}

func TestSchedulerCancelDiscardsWork(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewScheduler(clock, DefaultPeriod)
	var r recorder

	s.Start(r.task("settle", 2*time.Second))
	clock.Advance(time.Second)
	ch := s.C()

	s.Cancel()
	s.Cancel()

	if s.C() != nil {
		t.Error("cancelled scheduler should expose nil channel")
	}
	clock.Advance(5 * time.Second)
	select {
	case <-ch:
		// A tick buffered before cancel may remain; a new one must not.
		select {
		case <-ch:
			t.Error("stopped ticker delivered a tick after cancel")
		default:
		}
	default:
	}
	s.Fire()
	if len(r.ticks) != 0 || r.done != 0 {
		t.Errorf("cancelled task ran: ticks=%v done=%d", r.ticks, r.done)
	}
}

func TestSchedulerReplace(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewScheduler(clock, DefaultPeriod)
	var first, second recorder

	s.Start(first.task("dwell", 3*time.Second))
	clock.Advance(2 * time.Second)
	s.Start(second.task("settle", 2*time.Second))

	requireTickers(t, clock, 1)

	clock.Advance(2 * time.Second)
	s.Fire()

	if len(first.ticks) != 0 || first.done != 0 {
		t.Error("replaced task should not run")
	}
	// Progress is measured from the replacement's own start.
	if len(second.ticks) != 1 || second.ticks[0] != 1 || second.done != 1 {
		t.Errorf("unexpected replacement run: ticks=%v done=%d", second.ticks, second.done)
	}
}

func TestSchedulerOnTickCancel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewScheduler(clock, DefaultPeriod)
	done := false

	s.Start(Task{
		Name:   "dwell",
		Span:   time.Second,
		OnTick: func(float64) { s.Cancel() },
		OnDone: func() { done = true },
	})
	clock.Advance(time.Second)
	s.Fire()

	if done {
		t.Error("OnDone should not run when OnTick cancelled the task")
	}
}

func TestSchedulerNoDriftFromLateTicks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewScheduler(clock, DefaultPeriod)
	var r recorder

	s.Start(r.task("dwell", 3*time.Second))
	// Many ticks are missed; one late tick still sees full wall-clock time.
	for i := 0; i < 100; i++ {
		clock.Advance(DefaultPeriod)
	}
	s.Fire()

	want := Progress(100*DefaultPeriod, 3*time.Second)
	if len(r.ticks) != 1 || r.ticks[0] != want {
		t.Errorf("expected single tick at %v, got %v", want, r.ticks)
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		elapsed, span time.Duration
		want          float64
	}{
		{0, time.Second, 0},
		{500 * time.Millisecond, time.Second, 0.5},
		{2 * time.Second, time.Second, 1},
		{-time.Second, time.Second, 0},
		{time.Second, 0, 1},
	}
	for _, tt := range tests {
		if got := Progress(tt.elapsed, tt.span); got != tt.want {
			t.Errorf("Progress(%v, %v) = %v, want %v", tt.elapsed, tt.span, got, tt.want)
		}
	}
}

func TestSchedulerOnRealClock(t *testing.T) {
	s := NewScheduler(clockwork.NewRealClock(), time.Millisecond)
	var r recorder

	s.Start(r.task("settle", 20*time.Millisecond))
	deadline := time.After(2 * time.Second)
	for r.done == 0 {
		select {
		case <-s.C():
			s.Fire()
		case <-deadline:
			t.Fatalf("task did not complete, ticks=%d", len(r.ticks))
		}
	}

	if got := r.ticks[len(r.ticks)-1]; got != 1 {
		t.Errorf("final progress: got %v, want 1", got)
	}
	if s.C() != nil {
		t.Error("completed task should release its ticker")
	}
}
