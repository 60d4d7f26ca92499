// Package output realizes an arbitration decision on the manifold's relay lines.
package output

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/arbiter"
	"github.com/thatsimonsguy/manifold-controller/internal/gpio"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

// Valves is the part of the zone registry the driver writes back through.
type Valves interface {
	ByID(id int) (model.ZoneRecord, bool)
	SetValve(id int, open bool, mode model.ValveMode) (changed bool, found bool)
}

// Anomaly is a zone that could not be actuated because its pin has no relay.
type Anomaly struct {
	ZoneID int             `json:"zone_id"`
	Pin    int             `json:"pin"`
	Role   model.ValveMode `json:"role"`
}

// Result describes what Apply did to the hardware.
type Result struct {
	Asserted  []int // zone output indexes energized this cycle
	Anomalies []Anomaly
	FuelOn    bool
	PumpOn    bool
}

type Driver struct {
	bank  *gpio.Bank
	zones [model.ZoneOutputCount]model.GPIOPin
	fuel  model.GPIOPin
	pump  model.GPIOPin
}

func New(bank *gpio.Bank, zones [model.ZoneOutputCount]model.GPIOPin, fuel, pump model.GPIOPin) *Driver {
	return &Driver{bank: bank, zones: zones, fuel: fuel, pump: pump}
}

// Lines returns every managed output with a stable name.
func (d *Driver) Lines() []gpio.Line {
	lines := make([]gpio.Line, 0, model.ZoneOutputCount+2)
	for i, p := range d.zones {
		lines = append(lines, gpio.Line{Name: fmt.Sprintf("zone_%d", i), Pin: p})
	}
	return append(lines,
		gpio.Line{Name: "fuel_enable", Pin: d.fuel},
		gpio.Line{Name: "pump_enable", Pin: d.pump},
	)
}

// Apply drives the zone relays and the fuel/pump lines for dec. All zone relays
// are de-energized first; the primary then the secondary are asserted when their
// pins are in range. A secondary sharing the primary's pin is marked open without
// a second hardware write.
func (d *Driver) Apply(dec arbiter.Decision, valves Valves, boostEnabled bool) (Result, error) {
	var res Result

	for i, p := range d.zones {
		if err := d.bank.Deactivate(p); err != nil {
			return res, fmt.Errorf("failed to de-energize zone output %d: %w", i, err)
		}
	}

	var errs []error
	primaryPin := model.PinUnassigned

	if dec.HasPrimary() {
		z, ok := valves.ByID(dec.PrimaryID)
		switch {
		case !ok:
			log.Warn().Int("zone", dec.PrimaryID).Msg("Primary zone not in registry")
		case !z.PinInRange():
			res.Anomalies = append(res.Anomalies, d.anomaly(z, model.ValvePrimary))
		default:
			if err := d.bank.Activate(d.zones[z.Pin]); err != nil {
				errs = append(errs, fmt.Errorf("failed to energize zone output %d: %w", z.Pin, err))
			} else {
				primaryPin = z.Pin
				res.Asserted = append(res.Asserted, z.Pin)
				valves.SetValve(z.ID, true, model.ValvePrimary)
			}
		}
	}

	if dec.HasSecondary() && boostEnabled {
		z, ok := valves.ByID(dec.SecondaryID)
		switch {
		case !ok:
			log.Warn().Int("zone", dec.SecondaryID).Msg("Secondary zone not in registry")
		case !z.PinInRange():
			res.Anomalies = append(res.Anomalies, d.anomaly(z, model.ValveSecondary))
		case z.Pin == primaryPin:
			log.Debug().Int("zone", z.ID).Int("pin", z.Pin).Msg("Secondary shares primary output, already active")
			valves.SetValve(z.ID, true, model.ValveSecondary)
		default:
			if err := d.bank.Activate(d.zones[z.Pin]); err != nil {
				errs = append(errs, fmt.Errorf("failed to energize zone output %d: %w", z.Pin, err))
			} else {
				res.Asserted = append(res.Asserted, z.Pin)
				valves.SetValve(z.ID, true, model.ValveSecondary)
			}
		}
	}

	res.FuelOn, res.PumpOn = GasLines(dec.GasMode)
	if err := d.drive(d.fuel, res.FuelOn); err != nil {
		errs = append(errs, fmt.Errorf("failed to drive fuel enable: %w", err))
	}
	if err := d.drive(d.pump, res.PumpOn); err != nil {
		errs = append(errs, fmt.Errorf("failed to drive pump enable: %w", err))
	}

	return res, errors.Join(errs...)
}

// GasLines is the fuel/pump truth table.
func GasLines(mode model.GasMode) (fuel, pump bool) {
	switch mode {
	case model.GasOn:
		return true, true
	case model.FireplaceOnly:
		return false, true
	default:
		return false, false
	}
}

// FailClosed de-energizes every managed line, continuing past errors.
func (d *Driver) FailClosed() error {
	var errs []error
	for _, l := range d.Lines() {
		if err := d.bank.Deactivate(l.Pin); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.Name, err))
		}
	}
	if len(errs) == 0 {
		log.Info().Msg("All outputs de-energized")
	}
	return errors.Join(errs...)
}

func (d *Driver) drive(pin model.GPIOPin, active bool) error {
	if active {
		return d.bank.Activate(pin)
	}
	return d.bank.Deactivate(pin)
}

func (d *Driver) anomaly(z model.ZoneRecord, role model.ValveMode) Anomaly {
	log.Warn().Int("zone", z.ID).Str("name", z.Name).Int("pin", z.Pin).Str("role", string(role)).
		Msg("Zone has no valid output, skipping actuation")
	return Anomaly{ZoneID: z.ID, Pin: z.Pin, Role: role}
}
