package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/manifold-controller/db"
	"github.com/thatsimonsguy/manifold-controller/internal/configstore"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

func main() {
	DebugCLI()
}

type imageDump struct {
	Settings model.Settings `json:"settings"`
	Zones    []zoneDump     `json:"zones"`
}

type zoneDump struct {
	ID          int     `json:"id"`
	Pin         int     `json:"pin"`
	Forced      bool    `json:"forced"`
	TargetLocal float64 `json:"target_local"`
}

func DebugCLI() {
	var dbPath, filePath, command, setting string
	var zoneID, limit int
	var value float64
	flag.StringVar(&dbPath, "db", "data/manifold.db", "Path to the SQLite database file")
	flag.StringVar(&filePath, "file", "", "Path to a file-backed settings image (overrides -db for image commands)")
	flag.StringVar(&command, "cmd", "", "Command to run: dump, set, valve-events")
	flag.StringVar(&setting, "setting", "", "Setting for set: use_gas, boost_enabled, min_operating_temp")
	flag.Float64Var(&value, "value", 0, "Value for set (0/1 for flags)")
	flag.IntVar(&zoneID, "zone", model.NoZone, "Zone ID filter for valve-events")
	flag.IntVar(&limit, "limit", 50, "Maximum number of valve events")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of manifold-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/manifold.db')")
		fmt.Println("  -file string\tPath to a file-backed settings image")
		fmt.Println("  -cmd string\tCommand to run: dump, set, valve-events")
		fmt.Println("  -setting string\tSetting for set: use_gas, boost_enabled, min_operating_temp")
		fmt.Println("  -value float\tValue for set")
		fmt.Println("  -zone int\tZone ID filter for valve-events")
		fmt.Println("  -limit int\tMaximum number of valve events")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "dump":
		err = dump(dbPath, filePath)
	case "set":
		err = set(dbPath, filePath, setting, value)
	case "valve-events":
		err = listEvents(dbPath, zoneID, limit)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func readImage(dbPath, filePath string) ([]byte, error) {
	if filePath != "" {
		b, err := os.ReadFile(filePath)
		if os.IsNotExist(err) {
			return nil, nil
		}
		return b, err
	}
	image, _, err := db.ReadSettingsImageCLI(dbPath)
	return image, err
}

func writeImage(dbPath, filePath string, image []byte) error {
	if filePath != "" {
		return os.WriteFile(filePath, image, 0644)
	}
	return db.WriteSettingsImageCLI(dbPath, image)
}

func dump(dbPath, filePath string) error {
	image, err := readImage(dbPath, filePath)
	if err != nil {
		return err
	}
	settings, zones, ok := configstore.Decode(image)
	if !ok {
		return fmt.Errorf("no valid settings image (%d bytes)", len(image))
	}

	out := imageDump{Settings: settings, Zones: []zoneDump{}}
	for _, z := range zones {
		out.Zones = append(out.Zones, zoneDump{ID: z.ID, Pin: z.Pin, Forced: z.Forced, TargetLocal: z.TargetLocal})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func set(dbPath, filePath, setting string, value float64) error {
	image, err := readImage(dbPath, filePath)
	if err != nil {
		return err
	}
	settings, zones, _ := configstore.Decode(image)

	switch setting {
	case "use_gas":
		settings.UseGas = value != 0
	case "boost_enabled":
		settings.BoostEnabled = value != 0
	case "min_operating_temp":
		settings.MinOperatingTemp = value
	default:
		return fmt.Errorf("unknown setting %q", setting)
	}

	if err := writeImage(dbPath, filePath, configstore.Encode(settings, zones)); err != nil {
		return err
	}
	fmt.Printf("Set %s to %v\n", setting, value)
	return nil
}

func listEvents(dbPath string, zoneID, limit int) error {
	events, err := db.ListValveEventsCLI(dbPath, zoneID, limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Printf("%s  zone=%d (%s) pin=%d open=%v mode=%s\n",
			ev.At.Format("2006-01-02 15:04:05"), ev.ZoneID, ev.ZoneName, ev.Pin, ev.Open, ev.Mode)
	}
	return nil
}
