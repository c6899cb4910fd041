//go:build !linux

package gpio

import "errors"

// ErrUnsupported is returned when GPIO is not available on this platform.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns ErrUnsupported on non-Linux platforms.
func NewRealReader(pinZero, pinRestart int) (*RealReader, error) {
	return nil, ErrUnsupported
}

func (r *RealReader) Read() (Buttons, error) {
	return Buttons{}, ErrUnsupported
}

func (r *RealReader) Close() error {
	return nil
}
