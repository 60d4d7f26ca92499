package arbiter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/manifold-controller/internal/arbiter"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

func z(id int, forced bool, cur, remote, local float64) model.ZoneRecord {
	r := model.NewZoneRecord(id)
	r.Forced = forced
	r.CurrentTemp = cur
	r.TargetRemote = remote
	r.TargetLocal = local
	return r
}

// A(forced,18->21), B(forced,19->20), C(not forced,10->30)
func sampleZones() []model.ZoneRecord {
	return []model.ZoneRecord{
		z(1, true, 18, 0, 21),
		z(2, true, 19, 0, 20),
		z(3, false, 10, 0, 30),
	}
}

func TestEffectiveTarget(t *testing.T) {
	zone := z(1, true, 18, 22, 20)
	assert.Equal(t, 22.0, arbiter.EffectiveTarget(zone, true))
	assert.Equal(t, 20.0, arbiter.EffectiveTarget(zone, false))

	zone = z(1, true, 18, 19, 21)
	assert.Equal(t, 21.0, arbiter.EffectiveTarget(zone, true))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name          string
		zones         []model.ZoneRecord
		useGas        bool
		boost         bool
		wantPrimary   int
		wantSecondary int
		wantGas       model.GasMode
	}{
		{
			name:          "coldest primary, closest-to-target secondary",
			zones:         sampleZones(),
			useGas:        false,
			boost:         true,
			wantPrimary:   1,
			wantSecondary: 2,
			wantGas:       model.FireplaceOnly,
		},
		{
			name:          "boost disabled suppresses secondary",
			zones:         sampleZones(),
			useGas:        false,
			boost:         false,
			wantPrimary:   1,
			wantSecondary: model.NoZone,
			wantGas:       model.FireplaceOnly,
		},
		{
			name:          "gas mode on with a primary",
			zones:         sampleZones(),
			useGas:        true,
			boost:         true,
			wantPrimary:   1,
			wantSecondary: 2,
			wantGas:       model.GasOn,
		},
		{
			name: "nothing forced",
			zones: []model.ZoneRecord{
				z(1, false, 10, 25, 25),
				z(2, false, 12, 25, 25),
			},
			useGas:        true,
			boost:         true,
			wantPrimary:   model.NoZone,
			wantSecondary: model.NoZone,
			wantGas:       model.AllOff,
		},
		{
			name: "forced zones already satisfied",
			zones: []model.ZoneRecord{
				z(1, true, 22, 0, 21),
				z(2, true, 20, 0, 20),
			},
			useGas:        false,
			boost:         true,
			wantPrimary:   model.NoZone,
			wantSecondary: model.NoZone,
			wantGas:       model.AllOff,
		},
		{
			name: "no primary means all off regardless of gas",
			zones: []model.ZoneRecord{
				z(1, true, 22, 0, 21),
			},
			useGas:        true,
			boost:         false,
			wantPrimary:   model.NoZone,
			wantSecondary: model.NoZone,
			wantGas:       model.AllOff,
		},
		{
			name: "remote target only counts with gas",
			zones: []model.ZoneRecord{
				z(1, true, 18, 22, 0),
			},
			useGas:        false,
			boost:         false,
			wantPrimary:   model.NoZone,
			wantSecondary: model.NoZone,
			wantGas:       model.AllOff,
		},
		{
			name: "remote target drives demand with gas",
			zones: []model.ZoneRecord{
				z(1, true, 18, 22, 0),
			},
			useGas:        true,
			boost:         false,
			wantPrimary:   1,
			wantSecondary: model.NoZone,
			wantGas:       model.GasOn,
		},
		{
			name: "primary tie goes to first in order",
			zones: []model.ZoneRecord{
				z(7, true, 18, 0, 22),
				z(3, true, 18, 0, 21),
			},
			useGas:        false,
			boost:         true,
			wantPrimary:   7,
			wantSecondary: 3,
			wantGas:       model.FireplaceOnly,
		},
		{
			name: "secondary tie goes to first in order",
			zones: []model.ZoneRecord{
				z(1, true, 15, 0, 21),
				z(2, true, 19, 0, 20),
				z(3, true, 20, 0, 21),
			},
			useGas:        false,
			boost:         true,
			wantPrimary:   1,
			wantSecondary: 2,
			wantGas:       model.FireplaceOnly,
		},
		{
			name: "single candidate has no secondary",
			zones: []model.ZoneRecord{
				z(1, true, 15, 0, 21),
				z(2, false, 10, 0, 21),
			},
			useGas:        false,
			boost:         true,
			wantPrimary:   1,
			wantSecondary: model.NoZone,
			wantGas:       model.FireplaceOnly,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := arbiter.Decide(tc.zones, tc.useGas, tc.boost)
			assert.Equal(t, tc.wantPrimary, d.PrimaryID)
			assert.Equal(t, tc.wantSecondary, d.SecondaryID)
			assert.Equal(t, tc.wantGas, d.GasMode)
			assert.Equal(t, tc.wantPrimary != model.NoZone, d.HasPrimary())
			assert.Equal(t, tc.wantSecondary != model.NoZone, d.HasSecondary())
		})
	}
}

func TestDecide_DoesNotMutateInput(t *testing.T) {
	zones := sampleZones()
	before := make([]model.ZoneRecord, len(zones))
	copy(before, zones)

	arbiter.Decide(zones, true, true)

	assert.Equal(t, before, zones)
}

func TestDecide_CountsCandidates(t *testing.T) {
	d := arbiter.Decide(sampleZones(), false, true)
	assert.Equal(t, 2, d.Candidates)
}
