package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/manifold-controller/internal/datadog"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
	"github.com/thatsimonsguy/manifold-controller/internal/mqtt"
)

type Storage struct {
	Backend string `json:"backend" yaml:"backend"` // "file" or "sqlite"
	Path    string `json:"path" yaml:"path"`
}

type Remote struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type GPIO struct {
	Backend     string          `json:"backend" yaml:"backend"` // "pinctrl", "gpiocdev" or "fake"
	Chip        string          `json:"chip" yaml:"chip"`
	ZoneOutputs []model.GPIOPin `json:"zone_outputs" yaml:"zone_outputs"`
	FuelEnable  *model.GPIOPin  `json:"fuel_enable" yaml:"fuel_enable"`
	PumpEnable  *model.GPIOPin  `json:"pump_enable" yaml:"pump_enable"`
}

type Config struct {
	ConfigFile string        `json:"-" yaml:"-"`
	LogLevel   zerolog.Level `json:"-" yaml:"-"`
	SafeMode   bool          `json:"safe_mode" yaml:"safe_mode"`

	PollIntervalSeconds    int    `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds" yaml:"refresh_interval_seconds"`
	SensorIntervalSeconds  int    `json:"sensor_interval_seconds" yaml:"sensor_interval_seconds"`
	APIPort                int    `json:"api_port" yaml:"api_port"`
	DBPath                 string `json:"db_path" yaml:"db_path"`

	Storage        Storage        `json:"storage" yaml:"storage"`
	Remote         Remote         `json:"remote" yaml:"remote"`
	Defaults       model.Settings `json:"defaults" yaml:"defaults"`
	PinAssignments map[int]int    `json:"pin_assignments" yaml:"pin_assignments"`
	GPIO           GPIO           `json:"gpio" yaml:"gpio"`
	ManifoldSensor string         `json:"manifold_sensor" yaml:"manifold_sensor"`

	MQTT       mqtt.Config    `json:"mqtt" yaml:"mqtt"`
	Datadog    datadog.Config `json:"datadog" yaml:"datadog"`
	NtfyServer string         `json:"ntfy_server" yaml:"ntfy_server"`
	NtfyTopic  string         `json:"ntfy_topic" yaml:"ntfy_topic"`

	BootScriptPath string `json:"boot_script_path" yaml:"boot_script_path"`
	OSServicePath  string `json:"os_service_path" yaml:"os_service_path"`
	LogFile        string `json:"log_file" yaml:"log_file"`
	Console        bool   `json:"console" yaml:"console"`
}

// Load parses flags, the .env file and the config file. It panics on any
// configuration error.
func Load() Config {
	var configFile, logLevel string
	var safeMode bool

	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file (.json, .yaml or .yml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&safeMode, "safe-mode", false, "Log pin writes instead of driving hardware")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic("Failed to load .env file: " + err.Error())
	}

	cfg, err := LoadFile(configFile)
	if err != nil {
		panic(err.Error())
	}
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.SafeMode = cfg.SafeMode || safeMode
	return cfg
}

// LoadFile reads, defaults, overrides from the environment and validates one config file.
func LoadFile(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ConfigFile = path
	cfg.LogLevel = zerolog.InfoLevel
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.MQTT.Broker, "MANIFOLD_MQTT_BROKER")
	override(&cfg.NtfyTopic, "MANIFOLD_NTFY_TOPIC")
	override(&cfg.Datadog.AgentAddr, "DD_AGENT_ADDR")
	override(&cfg.Remote.BaseURL, "MANIFOLD_REMOTE_URL")
}

func (cfg *Config) applyDefaults() {
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 5
	}
	if cfg.RefreshIntervalSeconds == 0 {
		cfg.RefreshIntervalSeconds = 65
	}
	if cfg.SensorIntervalSeconds == 0 {
		cfg.SensorIntervalSeconds = 30
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/manifold.db"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Backend == "file" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/settings.bin"
	}
	if cfg.Remote.TimeoutMS == 0 {
		cfg.Remote.TimeoutMS = 2500
	}
	if cfg.GPIO.Backend == "" {
		cfg.GPIO.Backend = "pinctrl"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "manifold"
	}
	if cfg.PinAssignments == nil {
		cfg.PinAssignments = map[int]int{}
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() error {
	var (
		problems  []string
		usedPins  = map[int]string{}
		conflicts []string
	)

	claim := func(name string, pin model.GPIOPin) {
		if other, exists := usedPins[pin.Number]; exists {
			conflicts = append(conflicts, fmt.Sprintf("%s and %s both use pin %d", name, other, pin.Number))
			return
		}
		usedPins[pin.Number] = name
	}

	if len(cfg.GPIO.ZoneOutputs) != model.ZoneOutputCount {
		problems = append(problems, fmt.Sprintf("gpio.zone_outputs needs %d entries, got %d", model.ZoneOutputCount, len(cfg.GPIO.ZoneOutputs)))
	}
	for i, p := range cfg.GPIO.ZoneOutputs {
		claim(fmt.Sprintf("gpio.zone_outputs[%d]", i), p)
	}
	if cfg.GPIO.FuelEnable == nil {
		problems = append(problems, "missing gpio.fuel_enable")
	} else {
		claim("gpio.fuel_enable", *cfg.GPIO.FuelEnable)
	}
	if cfg.GPIO.PumpEnable == nil {
		problems = append(problems, "missing gpio.pump_enable")
	} else {
		claim("gpio.pump_enable", *cfg.GPIO.PumpEnable)
	}

	var badAssignments []string
	for id, pin := range cfg.PinAssignments {
		if !model.ValidPin(pin) {
			badAssignments = append(badAssignments, fmt.Sprintf("%d -> %d", id, pin))
		}
	}
	if len(badAssignments) > 0 {
		sort.Strings(badAssignments)
		problems = append(problems, fmt.Sprintf("pin_assignments must map to 0..%d: %s",
			model.ZoneOutputCount-1, strings.Join(badAssignments, ", ")))
	}

	switch cfg.GPIO.Backend {
	case "pinctrl", "gpiocdev", "fake":
	default:
		problems = append(problems, fmt.Sprintf("unknown gpio.backend %q", cfg.GPIO.Backend))
	}
	switch cfg.Storage.Backend {
	case "file", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.backend %q", cfg.Storage.Backend))
	}

	sort.Strings(conflicts)
	if len(conflicts) > 0 {
		problems = append(problems, "conflicting GPIO pins: "+strings.Join(conflicts, ", "))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ZoneOutputs returns the zone relay lines indexed by zone pin.
func (cfg *Config) ZoneOutputs() [model.ZoneOutputCount]model.GPIOPin {
	var out [model.ZoneOutputCount]model.GPIOPin
	copy(out[:], cfg.GPIO.ZoneOutputs)
	return out
}
