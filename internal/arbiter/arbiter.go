package arbiter

import (
	"math"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

// Decision is the outcome of one arbitration cycle.
type Decision struct {
	PrimaryID   int
	SecondaryID int
	GasMode     model.GasMode

	Candidates int
}

func (d Decision) HasPrimary() bool   { return d.PrimaryID != model.NoZone }
func (d Decision) HasSecondary() bool { return d.SecondaryID != model.NoZone }

// EffectiveTarget is the setpoint a zone is heated towards. Remote setpoints
// only count while the gas source is in use.
func EffectiveTarget(z model.ZoneRecord, useGas bool) float64 {
	if useGas {
		return math.Max(z.TargetRemote, z.TargetLocal)
	}
	return z.TargetLocal
}

// IsCandidate reports whether a zone is forced and below its effective target.
func IsCandidate(z model.ZoneRecord, useGas bool) bool {
	return z.Forced && z.CurrentTemp < EffectiveTarget(z, useGas)
}

// Decide picks the primary zone (coldest candidate) and, when boost is enabled,
// the secondary zone (candidate closest to its target). Ties go to the zone
// seen first in zones.
func Decide(zones []model.ZoneRecord, useGas, boostEnabled bool) Decision {
	d := Decision{
		PrimaryID:   model.NoZone,
		SecondaryID: model.NoZone,
		GasMode:     model.AllOff,
	}

	primary := -1
	var candidates []int
	for i, z := range zones {
		if !IsCandidate(z, useGas) {
			continue
		}
		candidates = append(candidates, i)
		if primary == -1 || z.CurrentTemp < zones[primary].CurrentTemp {
			primary = i
		}
	}
	d.Candidates = len(candidates)

	if primary == -1 {
		return d
	}
	d.PrimaryID = zones[primary].ID

	if useGas {
		d.GasMode = model.GasOn
	} else {
		d.GasMode = model.FireplaceOnly
	}

	if !boostEnabled {
		return d
	}

	secondary := -1
	smallest := 0.0
	for _, i := range candidates {
		if i == primary {
			continue
		}
		deficit := EffectiveTarget(zones[i], useGas) - zones[i].CurrentTemp
		if deficit <= 0 {
			continue
		}
		if secondary == -1 || deficit < smallest {
			secondary = i
			smallest = deficit
		}
	}
	if secondary != -1 {
		d.SecondaryID = zones[secondary].ID
	}

	return d
}
