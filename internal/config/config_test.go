package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

const validJSON = `{
  "poll_interval_seconds": 10,
  "pin_assignments": {"1868270675": 0, "206653929": 1},
  "defaults": {"use_gas": true, "boost_enabled": false, "min_operating_temp": 35},
  "remote": {"base_url": "http://proxy.local"},
  "gpio": {
    "backend": "fake",
    "zone_outputs": [
      {"number": 5, "active_high": true}, {"number": 6, "active_high": true},
      {"number": 13, "active_high": true}, {"number": 19, "active_high": true},
      {"number": 26, "active_high": true}, {"number": 16, "active_high": true}
    ],
    "fuel_enable": {"number": 20, "active_high": false},
    "pump_enable": {"number": 21, "active_high": false}
  }
}`

const validYAML = `
poll_interval_seconds: 10
pin_assignments:
  1868270675: 0
  206653929: 1
defaults:
  use_gas: true
  min_operating_temp: 35
storage:
  backend: sqlite
gpio:
  backend: gpiocdev
  chip: gpiochip4
  zone_outputs:
    - {number: 5, active_high: true}
    - {number: 6, active_high: true}
    - {number: 13, active_high: true}
    - {number: 19, active_high: true}
    - {number: 26, active_high: true}
    - {number: 16, active_high: true}
  fuel_enable: {number: 20, active_high: false}
  pump_enable: {number: 21, active_high: false}
`

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadFile_JSON(t *testing.T) {
	cfg, err := LoadFile(writeFile(t, "config.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.PollIntervalSeconds)
	assert.Equal(t, 65, cfg.RefreshIntervalSeconds)
	assert.Equal(t, map[int]int{1868270675: 0, 206653929: 1}, cfg.PinAssignments)
	assert.Equal(t, model.Settings{UseGas: true, MinOperatingTemp: 35}, cfg.Defaults)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "data/settings.bin", cfg.Storage.Path)
	assert.Equal(t, 2500, cfg.Remote.TimeoutMS)
	assert.Equal(t, "manifold", cfg.MQTT.TopicPrefix)

	zones := cfg.ZoneOutputs()
	assert.Equal(t, model.GPIOPin{Number: 16, ActiveHigh: true}, zones[5])
	assert.False(t, cfg.GPIO.FuelEnable.ActiveHigh)
}

func TestLoadFile_YAML(t *testing.T) {
	cfg, err := LoadFile(writeFile(t, "config.yaml", validYAML))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "gpiocdev", cfg.GPIO.Backend)
	assert.Equal(t, "gpiochip4", cfg.GPIO.Chip)
	assert.Equal(t, 1, cfg.PinAssignments[206653929])
	assert.True(t, cfg.Defaults.UseGas)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("MANIFOLD_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MANIFOLD_REMOTE_URL", "http://other-proxy")
	t.Setenv("MANIFOLD_NTFY_TOPIC", "heat-alerts")
	t.Setenv("DD_AGENT_ADDR", "dd:8125")

	cfg, err := LoadFile(writeFile(t, "config.json", validJSON))
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "http://other-proxy", cfg.Remote.BaseURL)
	assert.Equal(t, "heat-alerts", cfg.NtfyTopic)
	assert.Equal(t, "dd:8125", cfg.Datadog.AgentAddr)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to load")

	_, err = LoadFile(writeFile(t, "bad.json", "{"))
	assert.ErrorContains(t, err, "failed to parse")
}

func validConfig() Config {
	fuel := model.GPIOPin{Number: 20}
	pump := model.GPIOPin{Number: 21}
	return Config{
		Storage: Storage{Backend: "file"},
		GPIO: GPIO{
			Backend: "pinctrl",
			ZoneOutputs: []model.GPIOPin{
				{Number: 5, ActiveHigh: true}, {Number: 6, ActiveHigh: true},
				{Number: 13, ActiveHigh: true}, {Number: 19, ActiveHigh: true},
				{Number: 26, ActiveHigh: true}, {Number: 16, ActiveHigh: true},
			},
			FuelEnable: &fuel,
			PumpEnable: &pump,
		},
	}
}

func TestValidate_GPIOValid(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.validate())
}

func TestValidate_GPIO_Missing(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.FuelEnable = nil
	cfg.GPIO.ZoneOutputs = cfg.GPIO.ZoneOutputs[:4]

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpio.fuel_enable")
	assert.Contains(t, err.Error(), "needs 6 entries, got 4")
}

func TestValidate_GPIO_Conflict(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.PumpEnable.Number = 5

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpio.pump_enable and gpio.zone_outputs[0] both use pin 5")
}

func TestValidate_PinAssignmentsOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.PinAssignments = map[int]int{1868270675: 0, 42: 256, 7: 6}

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pin_assignments must map to 0..5: 42 -> 256, 7 -> 6")
}

func TestValidate_UnknownBackends(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.Backend = "sysfs"
	cfg.Storage.Backend = "eeprom"

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `gpio.backend "sysfs"`)
	assert.Contains(t, err.Error(), `storage.backend "eeprom"`)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLogLevel("debug").String())
	assert.Equal(t, "info", parseLogLevel("bogus").String())
}
