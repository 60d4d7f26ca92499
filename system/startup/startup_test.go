package startup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/manifold-controller/internal/gpio"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

func TestBootScript_DeenergizesEveryLine(t *testing.T) {
	script := BootScript([]gpio.Line{
		{Name: "zone_0", Pin: model.GPIOPin{Number: 5, ActiveHigh: true}},
		{Name: "fuel_enable", Pin: model.GPIOPin{Number: 20, ActiveHigh: false}},
	})

	assert.Contains(t, script, "#!/bin/bash\n")
	assert.Contains(t, script, "# zone_0\npinctrl set 5 op pn dl\n")
	assert.Contains(t, script, "# fuel_enable\npinctrl set 20 op pn dh\n")
}

func TestWriteAndInstall(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "boot", "gpio.sh")
	gpioUnit := filepath.Join(dir, "manifold-gpio.service")
	mainUnit := filepath.Join(dir, "manifold.service")

	require.NoError(t, WriteStartupScript(scriptPath, []gpio.Line{{Name: "pump_enable", Pin: model.GPIOPin{Number: 21}}}))
	info, err := os.Stat(scriptPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	require.NoError(t, InstallStartupService(scriptPath, gpioUnit))
	b, err := os.ReadFile(gpioUnit)
	require.NoError(t, err)
	assert.Contains(t, string(b), "ExecStart="+scriptPath)

	require.NoError(t, InstallControllerService(gpioUnit, ServiceUnit{
		Path:       mainUnit,
		User:       "pi",
		WorkingDir: "/opt/manifold",
		ExecStart:  "/opt/manifold/manifold-controller",
	}))
	b, err = os.ReadFile(mainUnit)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Requires=manifold-gpio.service")
	assert.Contains(t, string(b), "User=pi")
}
