package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted button readings.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted readings. Each call to Read consumes the
	// next one; the last is repeated once exhausted.
	Samples []Buttons

	index int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Read.
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Buttons) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted reading.
func (f *FakeReader) Read() (Buttons, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Buttons{}, f.ReadError
	}
	if len(f.Samples) == 0 {
		return Buttons{}, errors.New("no samples configured")
	}

	b := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return b, nil
}

// Press appends a press-and-release of one button to the script.
func (f *FakeReader) Press(zero, restart bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = append(f.Samples, Buttons{Zero: zero, Restart: restart}, Buttons{})
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset rewinds the script.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}
