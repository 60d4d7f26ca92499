package model

import "time"

const (
	// NoZone marks a zone id that has not been assigned yet.
	NoZone = -1
	// PinUnassigned marks a zone without a relay output.
	PinUnassigned = -1

	// ZoneOutputCount is the number of physical zone relay outputs on the manifold.
	ZoneOutputCount = 6
	// HistorySize bounds the per-zone temperature ring log.
	HistorySize = 40
)

type ValveMode string

const (
	ValveOff       ValveMode = "off"
	ValvePrimary   ValveMode = "primary"
	ValveSecondary ValveMode = "secondary"
)

type GasMode string

const (
	GasOn         GasMode = "gas_on"
	FireplaceOnly GasMode = "fireplace_only"
	AllOff        GasMode = "all_off"
)

// ZoneRecord is one independently valved heating zone.
type ZoneRecord struct {
	ID  int
	Pin int

	TargetRemote float64 // setpoint reported by the remote thermostat service
	TargetLocal  float64 // local override setpoint

	CurrentTemp float64
	History     []float64

	Forced    bool
	Reachable bool

	ValveOpen bool
	ValveMode ValveMode

	Name         string
	BatteryState string
	BatteryLevel int
	RFStrength   int
	Anticipating string
	Type         string
}

// NewZoneRecord returns a record with every field at its "not present" default.
func NewZoneRecord(id int) ZoneRecord {
	return ZoneRecord{
		ID:        id,
		Pin:       PinUnassigned,
		ValveMode: ValveOff,
	}
}

// PinInRange reports whether the zone maps to a physical relay output.
func (z ZoneRecord) PinInRange() bool {
	return ValidPin(z.Pin)
}

func ValidPin(pin int) bool {
	return pin >= 0 && pin < ZoneOutputCount
}

// Clone returns a copy that shares no backing storage with z.
func (z ZoneRecord) Clone() ZoneRecord {
	c := z
	if z.History != nil {
		c.History = append([]float64(nil), z.History...)
	}
	return c
}

// Settings is the operator-controlled global configuration.
type Settings struct {
	UseGas           bool    `json:"use_gas" yaml:"use_gas"`
	BoostEnabled     bool    `json:"boost_enabled" yaml:"boost_enabled"`
	MinOperatingTemp float64 `json:"min_operating_temp" yaml:"min_operating_temp"`
}

type GPIOPin struct {
	Number     int  `json:"number" yaml:"number"`
	ActiveHigh bool `json:"active_high" yaml:"active_high"`
}

type PinMapping struct {
	RoomID int    `json:"room_id"`
	Name   string `json:"name"`
	Pin    int    `json:"pin"`
}

// ValveEvent is one recorded valve transition.
type ValveEvent struct {
	ID       int64     `db:"id" json:"id"`
	ZoneID   int       `db:"zone_id" json:"zone_id"`
	ZoneName string    `db:"zone_name" json:"zone_name"`
	Pin      int       `db:"pin" json:"pin"`
	Open     bool      `db:"open" json:"open"`
	Mode     ValveMode `db:"mode" json:"mode"`
	At       time.Time `db:"at" json:"at"`
}
