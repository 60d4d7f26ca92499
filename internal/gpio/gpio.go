// Package gpio drives the relay lines of the manifold through a pluggable
// line driver (pinctrl CLI or the Linux GPIO character device).
package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

// Driver sets and reads raw line levels by BCM number.
type Driver interface {
	Write(pin int, high bool) error
	Read(pin int) (bool, error)
	Close() error
}

// Line is a named managed output.
type Line struct {
	Name string
	Pin  model.GPIOPin
}

// Bank translates logical activate/deactivate into line levels using each
// pin's polarity. In safe mode writes are logged and dropped.
type Bank struct {
	mu       sync.Mutex
	drv      Driver
	safeMode bool
}

func NewBank(drv Driver, safeMode bool) *Bank {
	return &Bank{drv: drv, safeMode: safeMode}
}

func (b *Bank) SetSafeMode(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.safeMode = enabled
}

func (b *Bank) Activate(pin model.GPIOPin) error {
	return b.set(pin, true)
}

func (b *Bank) Deactivate(pin model.GPIOPin) error {
	return b.set(pin, false)
}

func (b *Bank) set(pin model.GPIOPin, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.safeMode {
		log.Debug().Int("gpio", pin.Number).Bool("active", active).Msg("Safe mode, skipping pin write")
		return nil
	}

	level := pin.ActiveHigh == active
	if err := b.drv.Write(pin.Number, level); err != nil {
		return fmt.Errorf("failed to drive gpio %d active=%v: %w", pin.Number, active, err)
	}
	return nil
}

// CurrentlyActive reports whether the line is at its active level.
func (b *Bank) CurrentlyActive(pin model.GPIOPin) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	level, err := b.drv.Read(pin.Number)
	if err != nil {
		return false, fmt.Errorf("failed to read gpio %d: %w", pin.Number, err)
	}
	return pin.ActiveHigh == level, nil
}

// Describer is implemented by drivers that can report a line's full
// configuration (mode, drive, pull, level) for diagnostics.
type Describer interface {
	Describe(pin int) (string, error)
}

// ValidateDeenergized checks that none of lines is at its active level. In safe
// mode nothing was driven, so the check is skipped.
func (b *Bank) ValidateDeenergized(lines []Line) error {
	b.mu.Lock()
	safe := b.safeMode
	b.mu.Unlock()
	if safe {
		log.Warn().Int("lines", len(lines)).Msg("Safe mode, skipping startup pin validation")
		return nil
	}

	for _, l := range lines {
		active, err := b.CurrentlyActive(l.Pin)
		if err != nil {
			return fmt.Errorf("failed to read pin level for %s: %w", l.Name, err)
		}
		if active {
			b.logState(l)
			return fmt.Errorf("pin %d (%s) is energized, expected inactive", l.Pin.Number, l.Name)
		}
	}
	return nil
}

func (b *Bank) logState(l Line) {
	d, ok := b.drv.(Describer)
	if !ok {
		return
	}
	state, err := d.Describe(l.Pin.Number)
	if err != nil {
		log.Warn().Err(err).Int("gpio", l.Pin.Number).Msg("Failed to describe pin")
		return
	}
	log.Error().Str("line", l.Name).Int("gpio", l.Pin.Number).Str("state", state).Msg("Line energized at startup")
}

func (b *Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drv.Close()
}
