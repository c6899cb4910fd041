package touch

import (
	"math/rand"
	"sync"
	"time"
)

// DemoSource synthesizes a repeating weighing cycle without hardware:
// no contact, a resting finger, an item placed on top, then release.
type DemoSource struct {
	// Interval between batches.
	Interval time.Duration

	// ItemWeight is the pressure added by the synthetic item.
	ItemWeight float64

	mu  sync.Mutex
	sub *demoSubscription
}

// Demo profile phases, measured from the start of each cycle.
const (
	demoIdle    = 1 * time.Second
	demoFinger  = 4 * time.Second
	demoRise    = 200 * time.Millisecond
	demoHold    = 5 * time.Second
	demoRelease = 1 * time.Second

	demoFingerPressure = 8.0
	demoNoise          = 0.4
)

// NewDemoSource returns a demo source emitting batches at ~100 Hz.
func NewDemoSource() *DemoSource {
	return &DemoSource{
		Interval:   10 * time.Millisecond,
		ItemWeight: 50,
	}
}

// Subscribe starts a fresh synthetic cycle.
func (d *DemoSource) Subscribe() (Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sub != nil {
		d.sub.Close()
	}
	sub := &demoSubscription{
		ch:   make(chan Batch, 1),
		done: make(chan struct{}),
	}
	d.sub = sub
	go sub.run(d.Interval, d.ItemWeight)
	return sub, nil
}

// Devices reports the single synthetic device.
func (d *DemoSource) Devices() []Device {
	return []Device{{ID: "demo", Name: "Demo Surface", BuiltIn: true, Selected: true}}
}

// DemoPressure returns the noiseless demo pressure at offset into a cycle and
// whether a finger is in contact.
func DemoPressure(offset time.Duration, itemWeight float64) (float64, bool) {
	cycle := demoIdle + demoFinger + demoRise + demoHold + demoRelease
	offset %= cycle

	switch {
	case offset < demoIdle:
		return 0, false
	case offset < demoIdle+demoFinger:
		return demoFingerPressure, true
	case offset < demoIdle+demoFinger+demoRise:
		frac := float64(offset-demoIdle-demoFinger) / float64(demoRise)
		return demoFingerPressure + itemWeight*frac, true
	case offset < demoIdle+demoFinger+demoRise+demoHold:
		return demoFingerPressure + itemWeight, true
	default:
		return 0, false
	}
}

type demoSubscription struct {
	ch   chan Batch
	done chan struct{}
	once sync.Once
}

func (s *demoSubscription) Batches() <-chan Batch {
	return s.ch
}

func (s *demoSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *demoSubscription) run(interval time.Duration, itemWeight float64) {
	defer close(s.ch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			p, touching := DemoPressure(now.Sub(start), itemWeight)
			var b Batch
			if touching {
				b = Batch{{
					ID:       1,
					Position: Position{X: 0.5, Y: 0.5},
					Pressure: p + (rand.Float64()-0.5)*demoNoise,
					Axis:     Axis{Major: 9, Minor: 8},
					State:    StateTouching,
					Time:     now,
				}}
			}
			select {
			case s.ch <- b:
			case <-s.done:
				return
			default:
				// Consumer is behind; drop rather than queue stale samples.
			}
		}
	}
}
