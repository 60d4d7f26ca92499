package gpio

import "github.com/thatsimonsguy/manifold-controller/internal/pinctrl"

// PinctrlDriver shells out to the Raspberry Pi pinctrl tool.
type PinctrlDriver struct{}

func (PinctrlDriver) Write(pin int, high bool) error {
	return pinctrl.DriveOutput(pin, high)
}

func (PinctrlDriver) Read(pin int) (bool, error) {
	return pinctrl.ReadLevel(pin)
}

// Describe reports the pin as listed by `pinctrl get`.
func (PinctrlDriver) Describe(pin int) (string, error) {
	st, err := pinctrl.ReadPin(pin)
	if err != nil {
		return "", err
	}
	return pinctrl.Summary(*st), nil
}

func (PinctrlDriver) Close() error { return nil }

var _ Describer = PinctrlDriver{}
