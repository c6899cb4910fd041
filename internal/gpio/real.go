//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads buttons from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip    *gpiocdev.Chip
	zero    *gpiocdev.Line
	restart *gpiocdev.Line
}

// NewRealReader requests both button lines as pulled-up inputs.
func NewRealReader(pinZero, pinRestart int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	zero, err := chip.RequestLine(pinZero, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request zero pin %d: %w", pinZero, err)
	}

	restart, err := chip.RequestLine(pinRestart, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		zero.Close()
		chip.Close()
		return nil, fmt.Errorf("request restart pin %d: %w", pinRestart, err)
	}

	return &RealReader{chip: chip, zero: zero, restart: restart}, nil
}

// Read returns the logical button states. A line held low is pressed.
func (r *RealReader) Read() (Buttons, error) {
	zeroRaw, err := r.zero.Value()
	if err != nil {
		return Buttons{}, fmt.Errorf("read zero pin: %w", err)
	}

	restartRaw, err := r.restart.Value()
	if err != nil {
		return Buttons{}, fmt.Errorf("read restart pin: %w", err)
	}

	return Buttons{Zero: zeroRaw == 0, Restart: restartRaw == 0}, nil
}

// Close reconfigures both lines to input with pull-down, matching Pi boot
// defaults, and releases the chip.
func (r *RealReader) Close() error {
	var errs []error
	for name, line := range map[string]*gpiocdev.Line{"zero": r.zero, "restart": r.restart} {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
