// Package session owns a weighing session: the state machine, the direct
// scale readout and the sensor subscription, all driven from a single
// goroutine so batches, timer ticks and operator commands never race.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sweeney/touch-scale/internal/logic"
	"github.com/sweeney/touch-scale/internal/status"
	"github.com/sweeney/touch-scale/internal/touch"
	"github.com/sweeney/touch-scale/internal/weighing"
)

// ErrClosed is returned by operations on a session whose loop has exited.
var ErrClosed = errors.New("session closed")

// Mode selects what the session does with batches.
type Mode string

const (
	// ModeGuided runs the five-state weighing flow.
	ModeGuided Mode = "guided"
	// ModeScale shows raw pressure minus a zero offset.
	ModeScale Mode = "scale"
)

// ParseMode returns the Mode named by s.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGuided, ModeScale:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Publisher receives weighing events. Publish is called from a dedicated
// goroutine and may block.
type Publisher interface {
	Publish(event logic.Event) error
}

// Config holds the session settings.
type Config struct {
	Mode     Mode
	Weighing weighing.Config

	// OutboxSize bounds the events waiting to be published. Events beyond
	// it are dropped rather than stalling the loop.
	OutboxSize int
}

// DefaultConfig returns a guided session with default thresholds.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeGuided,
		Weighing:   weighing.DefaultConfig(),
		OutboxSize: 64,
	}
}

// Session serializes every operation on one weighing session.
// Operations block until Run is running and fail with ErrClosed once it has
// returned. The loop never waits on the source: subscribing happens on the
// caller's goroutine and releases run in the background.
type Session struct {
	source  touch.Source
	pub     Publisher
	tracker *status.Tracker
	mode    Mode

	cmds    chan func()
	outbox  chan logic.Event
	stopped chan struct{}
	runOnce sync.Once
	startMu sync.Mutex
	closing sync.WaitGroup

	// Owned by the loop goroutine.
	machine *weighing.Machine
	scale   logic.Scale
	sub     touch.Subscription
	batches <-chan touch.Batch
	id      string
	device  string
	counts  logic.EventCounts
}

// New creates a session reading from source. pub and tracker may be nil.
func New(source touch.Source, pub Publisher, tracker *status.Tracker, clock clockwork.Clock, cfg Config) *Session {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultConfig().OutboxSize
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeGuided
	}
	return &Session{
		source:  source,
		pub:     pub,
		tracker: tracker,
		mode:    cfg.Mode,
		cmds:    make(chan func()),
		outbox:  make(chan logic.Event, cfg.OutboxSize),
		stopped: make(chan struct{}),
		machine: weighing.NewMachine(cfg.Weighing, clock),
	}
}

// Run processes commands, batches and timer ticks until ctx is cancelled.
// The sensor subscription is released on every exit path. Run may be called
// once.
func (s *Session) Run(ctx context.Context) error {
	err := ErrClosed
	s.runOnce.Do(func() {
		err = s.run(ctx)
	})
	return err
}

func (s *Session) run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.publishLoop()
	}()

	defer func() {
		s.machine.Stop()
		s.release("session ended")
		close(s.outbox)
		wg.Wait()
		s.closing.Wait()
		close(s.stopped)
	}()

	s.publishStatus()
	for {
		select {
		case <-ctx.Done():
			log.Printf("session: stopping: %v", ctx.Err())
			return nil

		case cmd := <-s.cmds:
			cmd()

		case b, ok := <-s.batches:
			if ok {
				s.onBatch(b)
			} else {
				// The source went away; treat it as contact lost.
				log.Printf("session: sensor disconnected")
				s.onBatch(touch.Batch{})
				s.release("sensor disconnected")
			}

		case <-s.machine.TimerC():
			before := s.machine.State().Phase()
			s.emit(before, s.machine.Tick())
		}
		s.publishStatus()
	}
}

// Start begins a new weighing attempt, reinitializing any attempt in
// progress. If the sensor cannot be subscribed to, the session returns to
// Welcome and the error wraps touch.ErrSourceUnavailable.
//
// Subscribe runs on the caller's goroutine, so a slow source delays only
// the caller.
func (s *Session) Start() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	select {
	case <-s.stopped:
		return ErrClosed
	default:
	}

	sub, subErr := s.source.Subscribe()
	var err error
	if cerr := s.do(func() { err = s.start(sub, subErr) }); cerr != nil {
		if sub != nil {
			sub.Close()
		}
		return cerr
	}
	return err
}

// Restart abandons the attempt, releases the sensor and returns to Welcome.
func (s *Session) Restart() error {
	return s.do(s.restart)
}

// Zero tares the direct scale at the current reading. It reports false
// outside scale mode or without contact.
func (s *Session) Zero() (bool, error) {
	var ok bool
	err := s.do(func() {
		if s.mode != ModeScale {
			log.Printf("session: zero ignored in %s mode", s.mode)
			return
		}
		ok = s.scale.Zero()
		if ok {
			log.Printf("session: zeroed at %.2f", s.scale.Offset())
		} else {
			log.Printf("session: zero ignored, no contact")
		}
	})
	return ok, err
}

// Status returns the session projection.
func (s *Session) Status() (status.Session, error) {
	var v status.Session
	err := s.do(func() { v = s.view() })
	return v, err
}

// Counts returns the outcome counts since startup.
func (s *Session) Counts() (logic.EventCounts, error) {
	var c logic.EventCounts
	err := s.do(func() { c = s.counts })
	return c, err
}

// Devices returns the devices the source currently reports.
func (s *Session) Devices() []touch.Device {
	return s.source.Devices()
}

// do runs fn on the loop goroutine and waits for it to finish.
func (s *Session) do(fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrClosed
	}
	<-done
	return nil
}

func (s *Session) start(sub touch.Subscription, err error) error {
	s.release("restarting session")

	if err != nil {
		before := s.machine.State().Phase()
		s.emit(before, s.machine.Restart())
		s.id = ""
		log.Printf("session: start failed: %v", err)
		if errors.Is(err, touch.ErrSourceUnavailable) {
			return fmt.Errorf("start session: %w", err)
		}
		return fmt.Errorf("start session: %w: %w", touch.ErrSourceUnavailable, err)
	}

	s.sub = sub
	s.batches = sub.Batches()
	s.id = uuid.NewString()
	s.device = ""
	if d, ok := touch.SelectedDevice(s.source.Devices()); ok {
		s.device = d.ID
		log.Printf("session: %s listening on %s (%s)", s.id, d.Name, d.ID)
	} else {
		log.Printf("session: %s listening, no device selected", s.id)
	}

	s.scale.Reset()
	if s.mode == ModeGuided {
		before := s.machine.State().Phase()
		s.emit(before, s.machine.Start())
	}
	return nil
}

func (s *Session) restart() {
	s.release("restart")
	before := s.machine.State().Phase()
	s.emit(before, s.machine.Restart())
	s.scale.Reset()
	s.id = ""
	s.device = ""
}

func (s *Session) onBatch(b touch.Batch) {
	if s.mode == ModeScale {
		sample, ok := b.Primary()
		s.scale.Observe(sample.Pressure, ok)
		return
	}

	before := s.machine.State().Phase()
	s.emit(before, s.machine.Process(b))
}

// emit stamps, counts, logs and queues events. A RESULT ends the attempt's
// subscription.
func (s *Session) emit(before logic.Phase, events []logic.Event) {
	for _, e := range events {
		e.Session = s.id
		s.counts.Add(e, before)
		log.Printf("session: %s (state=%s pressure=%.2f baseline=%.2f weight=%.2f)",
			e.Type, e.Phase, e.Pressure, e.Baseline, e.Weight)

		select {
		case s.outbox <- e:
		default:
			log.Printf("session: outbox full, dropping %s", e.Type)
		}

		if e.Type == logic.EventResult {
			s.release("result")
		}
	}
}

// release detaches the subscription from the loop and closes it in the
// background. Run waits for outstanding closes before returning.
func (s *Session) release(reason string) {
	if s.sub == nil {
		return
	}
	sub := s.sub
	s.sub = nil
	s.batches = nil
	log.Printf("session: releasing sensor (%s)", reason)

	s.closing.Add(1)
	go func() {
		defer s.closing.Done()
		if err := sub.Close(); err != nil {
			log.Printf("session: release subscription: %v", err)
		}
	}()
}

func (s *Session) view() status.Session {
	snap := s.machine.Snapshot()
	return status.Session{
		ID:                s.id,
		Mode:              string(s.mode),
		Phase:             snap.State.Phase(),
		Listening:         s.sub != nil,
		Device:            s.device,
		Pressure:          snap.Pressure,
		DwellProgress:     snap.DwellProgress,
		StabilityProgress: snap.StabilityProgress,
		Stabilizing:       snap.Stabilizing,
		Weight:            snap.Weight,
		Baseline:          snap.Baseline,
		MaxPressure:       snap.MaxPressure,
		Touching:          s.scale.Touching(),
		ScaleWeight:       s.scale.Weight(),
		ZeroOffset:        s.scale.Offset(),
	}
}

func (s *Session) publishStatus() {
	if s.tracker == nil {
		return
	}
	s.tracker.UpdateSession(s.view(), s.counts)
}

func (s *Session) publishLoop() {
	for e := range s.outbox {
		if s.pub == nil {
			continue
		}
		if err := s.pub.Publish(e); err != nil {
			log.Printf("session: publish error: %v", err)
			// Don't crash on publish failure
		}
	}
}
