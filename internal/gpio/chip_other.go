//go:build !linux

package gpio

import "errors"

// ChipDriver is not available on non-Linux platforms.
type ChipDriver struct{}

func NewChipDriver(name string) (*ChipDriver, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

func (c *ChipDriver) Write(pin int, high bool) error {
	return errors.New("gpio: not supported")
}

func (c *ChipDriver) Read(pin int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

func (c *ChipDriver) Close() error { return nil }
