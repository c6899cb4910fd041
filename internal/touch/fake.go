package touch

import (
	"sync"
)

// FakeSource is a test double that hands out subscriptions fed by Send.
type FakeSource struct {
	mu sync.Mutex

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// DeviceList is returned by Devices.
	DeviceList []Device

	// Subscribes counts successful Subscribe calls.
	Subscribes int

	// Closes counts subscriptions released by their owner.
	Closes int

	current *fakeSubscription
}

// NewFakeSource creates a FakeSource with a single selected built-in device.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		DeviceList: []Device{{ID: "fake-0", Name: "Fake Trackpad", BuiltIn: true, Selected: true}},
	}
}

// Subscribe returns a fresh subscription. Any previous subscription keeps
// its own channel; Send only feeds the newest one.
func (f *FakeSource) Subscribe() (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeError != nil {
		return nil, f.SubscribeError
	}

	sub := &fakeSubscription{
		source: f,
		ch:     make(chan Batch),
		done:   make(chan struct{}),
	}
	f.current = sub
	f.Subscribes++
	return sub, nil
}

// Devices returns DeviceList.
func (f *FakeSource) Devices() []Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Device, len(f.DeviceList))
	copy(out, f.DeviceList)
	return out
}

// Send delivers a batch to the current subscription. It blocks until the
// subscriber receives the batch and returns false if there is no live
// subscription or it is closed before delivery.
func (f *FakeSource) Send(b Batch) bool {
	f.mu.Lock()
	sub := f.current
	f.mu.Unlock()

	if sub == nil {
		return false
	}
	select {
	case <-sub.done:
		return false
	default:
	}
	select {
	case sub.ch <- b:
		return true
	case <-sub.done:
		return false
	}
}

// Disconnect simulates the driver going away: the current subscription's
// batch channel is closed. Not safe to call concurrently with Send.
func (f *FakeSource) Disconnect() {
	f.mu.Lock()
	sub := f.current
	f.current = nil
	f.mu.Unlock()

	if sub != nil {
		sub.disconnect()
	}
}

// Listening reports whether a subscription is live.
func (f *FakeSource) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return false
	}
	select {
	case <-f.current.done:
		return false
	default:
		return true
	}
}

// Counts returns the number of subscribes and closes so far.
func (f *FakeSource) Counts() (subscribes, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Subscribes, f.Closes
}

type fakeSubscription struct {
	source   *FakeSource
	ch       chan Batch
	done     chan struct{}
	doneOnce sync.Once
	released bool // guarded by source.mu
}

func (s *fakeSubscription) Batches() <-chan Batch {
	return s.ch
}

func (s *fakeSubscription) Close() error {
	s.doneOnce.Do(func() { close(s.done) })

	s.source.mu.Lock()
	if !s.released {
		s.released = true
		s.source.Closes++
	}
	if s.source.current == s {
		s.source.current = nil
	}
	s.source.mu.Unlock()
	return nil
}

// disconnect closes the batch channel. Must not race with Send.
func (s *fakeSubscription) disconnect() {
	s.doneOnce.Do(func() { close(s.done) })
	close(s.ch)
}
