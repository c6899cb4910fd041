package weighing

import (
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/touch-scale/internal/logic"
	"github.com/sweeney/touch-scale/internal/ticker"
	"github.com/sweeney/touch-scale/internal/touch"
)

const (
	timerDwell  = "dwell"
	timerSettle = "settle"
)

// Machine is one weighing session's state.
//
// A Machine is not safe for concurrent use: Start, Restart, Process and Tick
// must be called from one goroutine, which also receives from TimerC and
// calls Tick for every value. Each call returns the events it produced.
type Machine struct {
	cfg       Config
	clock     clockwork.Clock
	timer     *ticker.Scheduler
	filter    *logic.Filter
	placement logic.PlacementDetector
	stability *logic.StabilityTracker

	state             logic.State
	pressure          float64
	baseline          float64
	maxPressure       float64
	lastWeight        float64
	itemDetected      bool
	dwellProgress     float64
	stabilityProgress float64
	stabilizing       bool

	pending []logic.Event
}

// Snapshot is a read-only projection of a Machine.
type Snapshot struct {
	State             logic.State
	Pressure          float64
	DwellProgress     float64
	StabilityProgress float64
	Stabilizing       bool
	Weight            float64
	Baseline          float64
	MaxPressure       float64
	Timer             string
}

// NewMachine creates a machine in Welcome.
func NewMachine(cfg Config, clock clockwork.Clock) *Machine {
	return &Machine{
		cfg:       cfg,
		clock:     clock,
		timer:     ticker.NewScheduler(clock, cfg.TickPeriod),
		filter:    logic.NewFilter(cfg.HistorySize),
		placement: logic.NewPlacementDetector(cfg.HistorySize, cfg.RateOfChange),
		stability: logic.NewStabilityTracker(cfg.StabilityThreshold, cfg.StabilityDelay),
		state:     logic.Welcome{},
	}
}

// Start resets the session and waits for a finger. Calling Start on a
// running session reinitializes it.
func (m *Machine) Start() []logic.Event {
	m.reset()
	m.enter(logic.WaitingForFinger{})
	m.emit(logic.EventSessionStarted)
	return m.drain()
}

// Restart cancels all timers and returns to Welcome. Restarting from
// Welcome does nothing.
func (m *Machine) Restart() []logic.Event {
	if m.state.Phase() == logic.PhaseWelcome {
		m.reset()
		return nil
	}
	m.reset()
	m.enter(logic.Welcome{})
	m.emit(logic.EventRestarted)
	return m.drain()
}

// Stop cancels the active timer without changing state or emitting events.
// The owner calls it when abandoning the machine.
func (m *Machine) Stop() {
	m.timer.Cancel()
}

// Process evaluates one batch. It never blocks.
func (m *Machine) Process(b touch.Batch) []logic.Event {
	switch m.state.(type) {
	case logic.Welcome, logic.Result:
		return nil
	}

	sample, ok := b.Primary()
	if !ok {
		m.noContact()
		return m.drain()
	}

	m.pressure = m.filter.Smooth(sample.Pressure)
	if m.pressure > m.maxPressure {
		m.maxPressure = m.pressure
	}

	switch m.state.(type) {
	case logic.WaitingForFinger:
		if _, running := m.timer.Active(); !running {
			m.startDwell()
		}

	case logic.WaitingForItem:
		if baseline, placed := m.placement.Detect(m.filter.Values()); placed {
			m.timer.Cancel()
			m.baseline = baseline
			m.itemDetected = true
			m.lastWeight = m.pressure
			m.stability.Reset()
			m.stabilityProgress = 0
			m.stabilizing = false
			m.enter(m.weighingState())
			m.emit(logic.EventItemPlaced)
		}

	case logic.Weighing:
		m.lastWeight = m.pressure
		switch m.stability.Observe(m.pressure, m.clock.Now()) {
		case logic.StabilityBroken:
			m.timer.Cancel()
			m.stabilityProgress = 0
			m.stabilizing = false
			m.emit(logic.EventStabilityBroken)
		case logic.StabilitySettle:
			m.startSettle()
			m.emit(logic.EventSettling)
		}
		m.enter(m.weighingState())
	}
	return m.drain()
}

// Tick advances the active timer. Call it for every value received from
// TimerC.
func (m *Machine) Tick() []logic.Event {
	m.timer.Fire()
	return m.drain()
}

// TimerC returns the active timer's tick channel, or nil when no timer runs.
func (m *Machine) TimerC() <-chan time.Time {
	return m.timer.C()
}

// State returns the current lifecycle state.
func (m *Machine) State() logic.State {
	return m.state
}

// Snapshot returns the observable projection of the session.
func (m *Machine) Snapshot() Snapshot {
	timer, _ := m.timer.Active()
	snap := Snapshot{
		State:             m.state,
		Pressure:          m.pressure,
		DwellProgress:     m.dwellProgress,
		StabilityProgress: m.stabilityProgress,
		Stabilizing:       m.stabilizing,
		Baseline:          m.baseline,
		MaxPressure:       m.maxPressure,
		Timer:             timer,
	}
	if r, ok := m.state.(logic.Result); ok {
		snap.Weight = r.Weight
	}
	return snap
}

// History returns a copy of the smoothing window.
func (m *Machine) History() []float64 {
	return m.filter.Values()
}

func (m *Machine) noContact() {
	switch m.state.(type) {
	case logic.WaitingForFinger:
		// Dwell restarts from zero; the window is kept.
		_, running := m.timer.Active()
		m.timer.Cancel()
		wasProgressing := running || m.dwellProgress > 0
		m.dwellProgress = 0
		m.enter(logic.WaitingForFinger{})
		if wasProgressing {
			m.emit(logic.EventFingerLifted)
		}

	case logic.WaitingForItem:
		m.timer.Cancel()
		m.filter.Clear()
		m.baseline = 0
		m.dwellProgress = 0
		m.enter(logic.WaitingForFinger{})
		m.emit(logic.EventFingerLifted)

	case logic.Weighing:
		if m.itemDetected && m.lastWeight > 0 {
			m.finalize(m.lastWeight)
		}
	}
}

func (m *Machine) startDwell() {
	m.dwellProgress = 0
	m.timer.Start(ticker.Task{
		Name: timerDwell,
		Span: m.cfg.FingerHold,
		OnTick: func(p float64) {
			m.dwellProgress = p
			m.state = logic.WaitingForFinger{Progress: p}
		},
		OnDone: m.completeDwell,
	})
}

func (m *Machine) completeDwell() {
	m.baseline = m.pressure
	m.enter(logic.WaitingForItem{})
	m.emit(logic.EventFingerDetected)
}

func (m *Machine) startSettle() {
	m.stabilityProgress = 0
	m.stabilizing = true
	m.timer.Start(ticker.Task{
		Name: timerSettle,
		Span: m.cfg.SettleSpan(),
		OnTick: func(p float64) {
			m.stabilityProgress = p
			m.state = m.weighingState()
		},
		OnDone: func() {
			m.finalize(m.pressure)
		},
	})
}

func (m *Machine) finalize(weight float64) {
	m.timer.Cancel()
	m.stabilizing = false
	m.filter.Clear()
	if !m.enter(logic.Result{Weight: weight}) {
		return
	}
	m.emit(logic.EventResult)
}

func (m *Machine) weighingState() logic.Weighing {
	return logic.Weighing{
		CurrentPressure:   m.pressure,
		StabilityProgress: m.stabilityProgress,
		Stabilizing:       m.stabilizing,
	}
}

// enter moves to next if the lifecycle allows it.
func (m *Machine) enter(next logic.State) bool {
	from := m.state.Phase()
	if !logic.ValidTransition(from, next.Phase()) {
		log.Printf("weighing: refusing transition %s -> %s", from, next.Phase())
		return false
	}
	m.state = next
	return true
}

// reset cancels the timer before clearing anything the timer reads.
func (m *Machine) reset() {
	m.timer.Cancel()
	m.filter.Clear()
	m.stability.Reset()
	m.pressure = 0
	m.baseline = 0
	m.maxPressure = 0
	m.lastWeight = 0
	m.itemDetected = false
	m.dwellProgress = 0
	m.stabilityProgress = 0
	m.stabilizing = false
}

func (m *Machine) emit(t logic.EventType) {
	e := logic.Event{
		Timestamp:   m.clock.Now(),
		Type:        t,
		Phase:       m.state.Phase(),
		Pressure:    m.pressure,
		Baseline:    m.baseline,
		Weight:      m.lastWeight,
		MaxPressure: m.maxPressure,
	}
	if r, ok := m.state.(logic.Result); ok {
		e.Weight = r.Weight
	}
	m.pending = append(m.pending, e)
}

func (m *Machine) drain() []logic.Event {
	events := m.pending
	m.pending = nil
	return events
}
