package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/gpio"
	"github.com/thatsimonsguy/manifold-controller/internal/pinctrl"
)

// ServiceUnit describes the main controller systemd unit.
type ServiceUnit struct {
	Path       string
	User       string
	WorkingDir string
	ExecStart  string
}

// BootScript renders a pinctrl script driving every line to its de-energized level.
func BootScript(lines []gpio.Line) string {
	out := []string{"#!/bin/bash", "", "# Manifold GPIO pin configuration at boot", ""}
	for _, l := range lines {
		out = append(out,
			fmt.Sprintf("# %s", l.Name),
			fmt.Sprintf("pinctrl set %d op pn %s", l.Pin.Number, pinctrl.DriveFlag(!l.Pin.ActiveHigh)),
			"",
		)
	}
	return strings.Join(out, "\n") + "\n"
}

func WriteStartupScript(path string, lines []gpio.Line) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(BootScript(lines)), 0755); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("lines", len(lines)).Msg("Wrote boot script")
	return nil
}

func InstallStartupService(scriptPath, servicePath string) error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure manifold GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)

	return os.WriteFile(servicePath, []byte(unitContents), 0644)
}

func RunStartupScript(path string) error {
	cmd := exec.Command("/bin/bash", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// InstallControllerService writes the main unit, ordered after the GPIO unit.
func InstallControllerService(gpioServicePath string, unit ServiceUnit) error {
	gpioUnitName := filepath.Base(gpioServicePath)

	contents := fmt.Sprintf(`[Unit]
Description=Manifold controller main service
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
Environment=PATH=/usr/local/go/bin:/usr/local/bin:/usr/bin:/bin
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, gpioUnitName, gpioUnitName, unit.User, unit.WorkingDir, unit.ExecStart)

	return os.WriteFile(unit.Path, []byte(contents), 0644)
}
