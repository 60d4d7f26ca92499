// Package status projects registry state into the exported JSON documents.
package status

import (
	"math"
	"sort"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

type Room struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type,omitempty"`
	Pin          int       `json:"pin"`
	TargetRemote float64   `json:"target_remote"`
	TargetLocal  float64   `json:"target_local"`
	CurrentTemp  float64   `json:"current_temp"`
	Priority     float64   `json:"priority"`
	Forced       bool      `json:"forced"`
	Reachable    bool      `json:"reachable"`
	BatteryState string    `json:"battery_state,omitempty"`
	BatteryLevel int       `json:"battery_level"`
	RFStrength   int       `json:"rf_strength"`
	Anticipating string    `json:"anticipating,omitempty"`
	ValveOpen    bool      `json:"valve_open"`
	ValveMode    string    `json:"valve_mode"`
	History      []float64 `json:"history"`
}

type Meta struct {
	MinOperatingTemp float64 `json:"min_operating_temp"`
	ManifoldTemp     float64 `json:"manifold_temp"`
	BoostEnabled     bool    `json:"boost_enabled"`
	UseGas           bool    `json:"use_gas"`

	GasMode       model.GasMode `json:"gas_mode,omitempty"`
	PrimaryZone   int           `json:"primary_zone"`
	SecondaryZone int           `json:"secondary_zone"`
}

type Status struct {
	Rooms []Room `json:"rooms"`
	Meta  Meta   `json:"meta"`
}

// NewMeta fills the global scalars of the status meta block.
func NewMeta(s model.Settings, manifoldTemp float64) Meta {
	return Meta{
		MinOperatingTemp: s.MinOperatingTemp,
		ManifoldTemp:     Round1(manifoldTemp),
		BoostEnabled:     s.BoostEnabled,
		UseGas:           s.UseGas,
		PrimaryZone:      model.NoZone,
		SecondaryZone:    model.NoZone,
	}
}

// Build projects zones, in order, into a Status document.
func Build(zones []model.ZoneRecord, meta Meta) Status {
	rooms := make([]Room, 0, len(zones))
	for _, z := range zones {
		history := make([]float64, len(z.History))
		for i, v := range z.History {
			history[i] = Round1(v)
		}
		rooms = append(rooms, Room{
			ID:           z.ID,
			Name:         z.Name,
			Type:         z.Type,
			Pin:          z.Pin,
			TargetRemote: z.TargetRemote,
			TargetLocal:  z.TargetLocal,
			CurrentTemp:  z.CurrentTemp,
			Priority:     z.TargetRemote - z.CurrentTemp,
			Forced:       z.Forced,
			Reachable:    z.Reachable,
			BatteryState: z.BatteryState,
			BatteryLevel: z.BatteryLevel,
			RFStrength:   z.RFStrength,
			Anticipating: z.Anticipating,
			ValveOpen:    z.ValveOpen,
			ValveMode:    string(z.ValveMode),
			History:      history,
		})
	}
	return Status{Rooms: rooms, Meta: meta}
}

// PinMappings lists every known zone, then assignment entries for zones not yet observed.
func PinMappings(zones []model.ZoneRecord, assignments map[int]int) []model.PinMapping {
	out := make([]model.PinMapping, 0, len(zones)+len(assignments))
	seen := make(map[int]bool, len(zones))
	for _, z := range zones {
		seen[z.ID] = true
		out = append(out, model.PinMapping{RoomID: z.ID, Name: z.Name, Pin: z.Pin})
	}

	var pending []int
	for id := range assignments {
		if !seen[id] {
			pending = append(pending, id)
		}
	}
	sort.Ints(pending)
	for _, id := range pending {
		out = append(out, model.PinMapping{RoomID: id, Pin: assignments[id]})
	}
	return out
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
