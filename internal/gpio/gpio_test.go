package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

func TestBank_Polarity(t *testing.T) {
	drv := NewFakeDriver()
	b := NewBank(drv, false)

	high := model.GPIOPin{Number: 5, ActiveHigh: true}
	low := model.GPIOPin{Number: 20, ActiveHigh: false}

	require.NoError(t, b.Activate(high))
	require.NoError(t, b.Activate(low))
	assert.True(t, drv.Level(5))
	assert.False(t, drv.Level(20))

	active, err := b.CurrentlyActive(low)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, b.Deactivate(high))
	require.NoError(t, b.Deactivate(low))
	assert.False(t, drv.Level(5))
	assert.True(t, drv.Level(20))
}

func TestBank_SafeModeSkipsWrites(t *testing.T) {
	drv := NewFakeDriver()
	b := NewBank(drv, true)

	require.NoError(t, b.Activate(model.GPIOPin{Number: 5, ActiveHigh: true}))
	assert.Empty(t, drv.Writes)

	b.SetSafeMode(false)
	require.NoError(t, b.Activate(model.GPIOPin{Number: 5, ActiveHigh: true}))
	assert.Len(t, drv.Writes, 1)
}

func TestBank_WriteErrorIsWrapped(t *testing.T) {
	drv := NewFakeDriver()
	boom := errors.New("line busy")
	drv.Fail[6] = boom
	b := NewBank(drv, false)

	err := b.Activate(model.GPIOPin{Number: 6, ActiveHigh: true})
	assert.ErrorIs(t, err, boom)
}

func TestValidateDeenergized(t *testing.T) {
	drv := NewFakeDriver()
	b := NewBank(drv, false)

	lines := []Line{
		{Name: "zone_0", Pin: model.GPIOPin{Number: 5, ActiveHigh: true}},
		{Name: "fuel_enable", Pin: model.GPIOPin{Number: 20, ActiveHigh: false}},
	}
	for _, l := range lines {
		require.NoError(t, b.Deactivate(l.Pin))
	}
	assert.NoError(t, b.ValidateDeenergized(lines))

	require.NoError(t, b.Activate(lines[1].Pin))
	err := b.ValidateDeenergized(lines)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuel_enable")
}

type describingDriver struct {
	*FakeDriver
	described []int
}

func (d *describingDriver) Describe(pin int) (string, error) {
	d.described = append(d.described, pin)
	return "op dl pn | lo", nil
}

func TestValidateDeenergized_DescribesEnergizedLine(t *testing.T) {
	drv := &describingDriver{FakeDriver: NewFakeDriver()}
	b := NewBank(drv, false)

	fuel := Line{Name: "fuel_enable", Pin: model.GPIOPin{Number: 20, ActiveHigh: false}}
	require.NoError(t, b.Activate(fuel.Pin))

	assert.Error(t, b.ValidateDeenergized([]Line{fuel}))
	assert.Equal(t, []int{20}, drv.described)
}

func TestValidateDeenergized_SafeModeSkipsReads(t *testing.T) {
	drv := NewFakeDriver()
	drv.Fail[5] = errors.New("line has not been requested")
	b := NewBank(drv, true)

	assert.NoError(t, b.ValidateDeenergized([]Line{{Name: "zone_0", Pin: model.GPIOPin{Number: 5, ActiveHigh: true}}}))

	b.SetSafeMode(false)
	assert.Error(t, b.ValidateDeenergized([]Line{{Name: "zone_0", Pin: model.GPIOPin{Number: 5, ActiveHigh: true}}}))
}

func TestFakeDriver_WritesTo(t *testing.T) {
	drv := NewFakeDriver()
	_ = drv.Write(1, true)
	_ = drv.Write(2, true)
	_ = drv.Write(1, false)

	assert.Equal(t, []bool{true, false}, drv.WritesTo(1))
	drv.Reset()
	assert.Empty(t, drv.WritesTo(1))
	assert.False(t, drv.Level(1))

	require.NoError(t, drv.Close())
	assert.True(t, drv.Closed)
}
