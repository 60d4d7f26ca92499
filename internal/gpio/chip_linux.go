//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// ChipDriver drives lines through the GPIO character device. Lines are
// requested as outputs on first write and held until Close.
type ChipDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

func NewChipDriver(name string) (*ChipDriver, error) {
	if name == "" {
		name = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &ChipDriver{chip: chip, lines: make(map[int]*gpiocdev.Line)}, nil
}

func (c *ChipDriver) Write(pin int, high bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := 0
	if high {
		v = 1
	}

	line, ok := c.lines[pin]
	if !ok {
		l, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(v))
		if err != nil {
			return fmt.Errorf("request line %d: %w", pin, err)
		}
		c.lines[pin] = l
		return nil
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", pin, err)
	}
	return nil
}

// Read returns the level of a line previously requested by Write.
func (c *ChipDriver) Read(pin int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.lines[pin]
	if !ok {
		return false, fmt.Errorf("line %d has not been requested", pin)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", pin, err)
	}
	return v == 1, nil
}

func (c *ChipDriver) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for pin, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", pin, err))
		}
		delete(c.lines, pin)
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
