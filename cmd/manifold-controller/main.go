package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/db"
	"github.com/thatsimonsguy/manifold-controller/internal/api"
	"github.com/thatsimonsguy/manifold-controller/internal/config"
	"github.com/thatsimonsguy/manifold-controller/internal/configstore"
	"github.com/thatsimonsguy/manifold-controller/internal/controller"
	"github.com/thatsimonsguy/manifold-controller/internal/datadog"
	"github.com/thatsimonsguy/manifold-controller/internal/gpio"
	"github.com/thatsimonsguy/manifold-controller/internal/logging"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
	"github.com/thatsimonsguy/manifold-controller/internal/mqtt"
	"github.com/thatsimonsguy/manifold-controller/internal/notifications"
	"github.com/thatsimonsguy/manifold-controller/internal/output"
	"github.com/thatsimonsguy/manifold-controller/internal/registry"
	"github.com/thatsimonsguy/manifold-controller/internal/remote"
	"github.com/thatsimonsguy/manifold-controller/internal/temperature"
	"github.com/thatsimonsguy/manifold-controller/system/shutdown"
	"github.com/thatsimonsguy/manifold-controller/system/startup"
)

const valveEventRetention = 30 * 24 * time.Hour

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile, cfg.Console)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("storage", cfg.Storage.Backend).
		Str("gpio", cfg.GPIO.Backend).
		Msg("Starting manifold controller")

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer database.Close()

	notifier := notifications.New(cfg.NtfyServer, cfg.NtfyTopic)
	metrics := datadog.Init(cfg.Datadog)
	defer metrics.Close()

	drv, err := openDriver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open GPIO backend")
	}
	bank := gpio.NewBank(drv, cfg.SafeMode)
	defer bank.Close()
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED, GPIO writes are logged only")
	}

	out := output.New(bank, cfg.ZoneOutputs(), *cfg.GPIO.FuelEnable, *cfg.GPIO.PumpEnable)
	if err := out.FailClosed(); err != nil {
		log.Fatal().Err(err).Msg("Failed to de-energize outputs at startup")
	}
	if err := bank.ValidateDeenergized(out.Lines()); err != nil {
		shutdown.ShutdownWithError(out, cfg.SafeMode, err, "Refusing to run with energized outputs")
	}

	if cfg.BootScriptPath != "" {
		if err := startup.WriteStartupScript(cfg.BootScriptPath, out.Lines()); err != nil {
			log.Warn().Err(err).Msg("Failed to write boot script")
		} else if cfg.OSServicePath != "" {
			if err := startup.InstallStartupService(cfg.BootScriptPath, cfg.OSServicePath); err != nil {
				log.Warn().Err(err).Msg("Failed to install boot service")
			}
		}
	}

	reg := registry.New(cfg.PinAssignments)
	store := configstore.New(openMedium(cfg, database))
	settings, found, err := store.Load(reg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load stored configuration, using defaults")
	}
	if !found {
		settings = cfg.Defaults
	}

	deps := controller.Deps{
		Registry: reg,
		Output:   out,
		Store:    store,
		Notifier: notifier,
		Metrics:  metrics,
		RecordValve: func(ev model.ValveEvent) error {
			return db.RecordValveEvent(database, ev)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Remote.BaseURL != "" {
		deps.Remote = remote.NewClient(cfg.Remote.BaseURL, time.Duration(cfg.Remote.TimeoutMS)*time.Millisecond)
	} else {
		log.Warn().Msg("No remote thermostat service configured, zones come from storage only")
	}

	if cfg.ManifoldSensor != "" {
		sensor := temperature.NewSensor(cfg.ManifoldSensor, notifier)
		go sensor.Run(ctx, time.Duration(cfg.SensorIntervalSeconds)*time.Second)
		deps.Manifold = sensor
	}

	if cfg.MQTT.Broker != "" {
		pub := mqtt.Connect(cfg.MQTT.Broker)
		defer pub.Close()
		deps.Exporter = mqtt.NewStatusExporter(pub, cfg.MQTT.TopicPrefix)
	}

	ctrl := controller.New(deps, settings)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		ctrl.Run(ctx,
			time.Duration(cfg.PollIntervalSeconds)*time.Second,
			time.Duration(cfg.RefreshIntervalSeconds)*time.Second)
	}()
	go pruneValveEvents(ctx, database)

	server := api.NewServer(ctrl, database)
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("API server stopped")
			cancel()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}
	cancel()
	<-runDone
	if err := ctrl.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to de-energize outputs on stop")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("API server did not shut down cleanly")
	}

	shutdown.Shutdown(out, cfg.SafeMode)
}

func openDriver(cfg config.Config) (gpio.Driver, error) {
	switch cfg.GPIO.Backend {
	case "gpiocdev":
		return gpio.NewChipDriver(cfg.GPIO.Chip)
	case "fake":
		return gpio.NewFakeDriver(), nil
	default:
		return gpio.PinctrlDriver{}, nil
	}
}

func openMedium(cfg config.Config, database *sqlx.DB) configstore.Medium {
	if cfg.Storage.Backend == "sqlite" {
		return configstore.SQLiteMedium{DB: database}
	}
	return configstore.FileMedium{Path: cfg.Storage.Path}
}

func pruneValveEvents(ctx context.Context, database *sqlx.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PruneValveEvents(database, time.Now().UTC().Add(-valveEventRetention))
			if err != nil {
				log.Warn().Err(err).Msg("Failed to prune valve events")
			} else if n > 0 {
				log.Debug().Int64("rows", n).Msg("Pruned valve events")
			}
		}
	}
}
