// Package controller owns the zone registry and operator settings and runs the
// control cycle: refresh, reset, arbitrate, drive outputs, export.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/arbiter"
	"github.com/thatsimonsguy/manifold-controller/internal/configstore"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
	"github.com/thatsimonsguy/manifold-controller/internal/output"
	"github.com/thatsimonsguy/manifold-controller/internal/registry"
	"github.com/thatsimonsguy/manifold-controller/internal/remote"
	"github.com/thatsimonsguy/manifold-controller/internal/status"
)

var (
	ErrInvalidPin         = errors.New("pin out of range")
	ErrInvalidTemperature = errors.New("temperature out of range")
	ErrNoRemote           = errors.New("remote thermostat service not configured")
)

// MaxSetpoint bounds operator-supplied setpoints.
const MaxSetpoint = 40.0

type Fetcher interface {
	Fetch(ctx context.Context) ([]model.ZoneRecord, error)
	SetRoomTemperature(ctx context.Context, roomID int, temp float64) error
}

type Notifier interface {
	Send(title, message string) error
}

type Metrics interface {
	Gauge(name string, value float64, tags ...string)
	Count(name string, value int64, tags ...string)
}

type Exporter interface {
	PublishStatus(st status.Status) error
	PublishValve(z model.ZoneRecord) error
}

type Thermometer interface {
	Temperature() (float64, bool)
}

// Deps wires the controller to its collaborators. Registry, Output and Store
// are required; the rest may be nil.
type Deps struct {
	Registry *registry.Registry
	Output   *output.Driver
	Store    *configstore.Store

	Remote      Fetcher
	Manifold    Thermometer
	Exporter    Exporter
	Notifier    Notifier
	Metrics     Metrics
	RecordValve func(ev model.ValveEvent) error
}

type Controller struct {
	mu       sync.Mutex
	deps     Deps
	settings model.Settings

	lastDecision arbiter.Decision
	anomalyKey   string
	lowManifold  bool
	stopped      bool

	snapshot atomic.Pointer[status.Status]
	trigger  chan struct{}
}

func New(deps Deps, settings model.Settings) *Controller {
	c := &Controller{
		deps:     deps,
		settings: settings,
		lastDecision: arbiter.Decision{
			PrimaryID:   model.NoZone,
			SecondaryID: model.NoZone,
			GasMode:     model.AllOff,
		},
		trigger: make(chan struct{}, 1),
	}
	c.storeSnapshot()
	return c
}

// Run executes a cycle every tick and refreshes remote data every refresh
// interval until ctx is cancelled. Operator changes trigger an extra cycle.
func (c *Controller) Run(ctx context.Context, tick, refresh time.Duration) {
	log.Info().Dur("tick", tick).Dur("refresh", refresh).Msg("Starting control loop")

	if c.deps.Remote != nil {
		c.Refresh(ctx)
		go func() {
			ticker := time.NewTicker(refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.Refresh(ctx)
				}
			}
		}()
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		c.Tick()
		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopped")
			return
		case <-ticker.C:
		case <-c.trigger:
		}
	}
}

// Tick runs one control cycle to completion. A hardware error fails every
// output closed and leaves all valves marked off. After Stop, Tick does nothing.
func (c *Controller) Tick() error {
	st, changed, ran, err := c.cycle()
	if !ran {
		return nil
	}
	c.export(st, changed)
	return err
}

// Stop waits for any running cycle, fails every output closed and disables
// further cycles. Operator changes are still accepted and persisted.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	err := c.deps.Output.FailClosed()
	c.deps.Registry.ResetValves()
	c.lastDecision = arbiter.Decision{PrimaryID: model.NoZone, SecondaryID: model.NoZone, GasMode: model.AllOff}
	c.storeSnapshot()

	log.Info().Msg("Control loop stopped, outputs de-energized")
	return err
}

// cycle does the locked part of Tick. Export happens after the lock is released.
func (c *Controller) cycle() (st status.Status, changed []model.ZoneRecord, ran bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return st, nil, false, nil
	}

	reg := c.deps.Registry
	before := reg.All()

	reg.ResetValves()
	dec := arbiter.Decide(reg.All(), c.settings.UseGas, c.settings.BoostEnabled)

	res, err := c.deps.Output.Apply(dec, reg, c.settings.BoostEnabled)
	if err != nil {
		log.Error().Err(err).Msg("Failed to apply outputs, failing closed")
		if ferr := c.deps.Output.FailClosed(); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to de-energize outputs")
		}
		reg.ResetValves()
		dec = arbiter.Decision{PrimaryID: model.NoZone, SecondaryID: model.NoZone, GasMode: model.AllOff}
	}
	c.lastDecision = dec

	after := reg.All()
	changed = c.recordTransitions(before, after)
	c.reportAnomalies(res.Anomalies)
	manifold := c.checkManifold(dec)

	log.Debug().Int("primary", dec.PrimaryID).Int("secondary", dec.SecondaryID).
		Str("gas_mode", string(dec.GasMode)).Int("candidates", dec.Candidates).Msg("Cycle complete")

	c.emitMetrics(after, dec, res, len(changed), manifold)
	return c.storeSnapshot(), changed, true, err
}

// export publishes valve changes and the status document. It may block on the
// broker, so it never runs under c.mu.
func (c *Controller) export(st status.Status, changed []model.ZoneRecord) {
	if c.deps.Exporter == nil {
		return
	}
	for _, z := range changed {
		if err := c.deps.Exporter.PublishValve(z); err != nil {
			log.Warn().Err(err).Int("zone", z.ID).Msg("Failed to publish valve state")
		}
	}
	if err := c.deps.Exporter.PublishStatus(st); err != nil {
		log.Warn().Err(err).Msg("Failed to publish status")
	}
}

// Refresh fetches remote zone data and merges it into the registry. An
// overlapping call returns remote.ErrRequestInProgress; other errors leave the
// registry untouched.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.deps.Remote == nil {
		return ErrNoRemote
	}

	recs, err := c.deps.Remote.Fetch(ctx)
	if errors.Is(err, remote.ErrRequestInProgress) {
		log.Debug().Msg("Remote refresh already in progress")
		return err
	}
	if err != nil {
		log.Warn().Err(err).Msg("Remote refresh failed, keeping last known values")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range recs {
		// The remote service knows nothing about local overrides.
		if existing, ok := c.deps.Registry.ByID(rec.ID); ok {
			rec.Forced = existing.Forced
		}
		if _, err := c.deps.Registry.Upsert(rec); err != nil {
			log.Warn().Err(err).Int("zone", rec.ID).Msg("Skipping remote room")
		}
	}
	c.storeSnapshot()
	return nil
}

func (c *Controller) Settings() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings applies fn to the global settings and persists the result.
func (c *Controller) UpdateSettings(fn func(s *model.Settings)) (model.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.settings
	fn(&next)
	if err := validTemp(next.MinOperatingTemp, 0, 90); err != nil {
		return c.settings, err
	}
	c.settings = next

	log.Info().Bool("use_gas", next.UseGas).Bool("boost", next.BoostEnabled).
		Float64("min_operating_temp", next.MinOperatingTemp).Msg("Settings updated")
	err := c.commitLocked()
	c.Trigger()
	return next, err
}

func (c *Controller) SetForced(id int, forced bool) error {
	return c.mutate(id, "forced", func() error {
		return c.deps.Registry.SetForced(id, forced)
	})
}

func (c *Controller) SetLocalTarget(id int, temp float64) error {
	if err := validTemp(temp, 0, MaxSetpoint); err != nil {
		return err
	}
	return c.mutate(id, "local_target", func() error {
		return c.deps.Registry.SetTargetLocal(id, temp)
	})
}

// SetRemoteTarget pushes a setpoint to the remote thermostat service, mirrors
// it locally and refreshes remote data.
func (c *Controller) SetRemoteTarget(ctx context.Context, id int, temp float64) error {
	if err := validTemp(temp, 0, MaxSetpoint); err != nil {
		return err
	}
	if c.deps.Remote == nil {
		return ErrNoRemote
	}
	if _, ok := c.deps.Registry.ByID(id); !ok {
		return registry.ErrZoneNotFound
	}

	if err := c.deps.Remote.SetRoomTemperature(ctx, id, temp); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.deps.Registry.SetTargetRemote(id, temp)
	c.storeSnapshot()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if rerr := c.Refresh(ctx); rerr != nil && !errors.Is(rerr, remote.ErrRequestInProgress) {
		log.Warn().Err(rerr).Int("zone", id).Msg("Refresh after setpoint push failed")
	}
	c.Trigger()
	return nil
}

// AssignPin maps a zone to a relay output. Zones not yet observed keep the
// assignment in the table until they appear.
func (c *Controller) AssignPin(id, pin int) error {
	if !model.ValidPin(pin) {
		return fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	known := c.deps.Registry.AssignPin(id, pin)
	if !known {
		c.storeSnapshot()
		return nil
	}
	err := c.commitLocked()
	c.Trigger()
	return err
}

// Status returns the latest status projection.
func (c *Controller) Status() status.Status {
	if st := c.snapshot.Load(); st != nil {
		return *st
	}
	return status.Status{}
}

func (c *Controller) PinMappings() []model.PinMapping {
	return status.PinMappings(c.deps.Registry.All(), c.deps.Registry.PinAssignments())
}

// Trigger requests an immediate cycle from Run. It never blocks.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *Controller) mutate(id int, field string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	log.Info().Int("zone", id).Str("field", field).Msg("Zone updated by operator")

	err := c.commitLocked()
	c.Trigger()
	return err
}

// commitLocked persists settings and zones and refreshes the snapshot. Callers hold c.mu.
func (c *Controller) commitLocked() error {
	c.storeSnapshot()

	err := c.deps.Store.Save(c.settings, c.deps.Registry.All())
	if err == nil {
		return nil
	}

	log.Error().Err(err).Msg("Failed to persist configuration")
	if errors.Is(err, configstore.ErrCommitFailed) {
		c.notify("Configuration not saved", err.Error())
	}
	return err
}

func (c *Controller) storeSnapshot() status.Status {
	meta := status.NewMeta(c.settings, c.manifoldTemp())
	meta.GasMode = c.lastDecision.GasMode
	meta.PrimaryZone = c.lastDecision.PrimaryID
	meta.SecondaryZone = c.lastDecision.SecondaryID

	st := status.Build(c.deps.Registry.All(), meta)
	c.snapshot.Store(&st)
	return st
}

func (c *Controller) manifoldTemp() float64 {
	if c.deps.Manifold == nil {
		return 0
	}
	temp, _ := c.deps.Manifold.Temperature()
	return temp
}

func (c *Controller) recordTransitions(before, after []model.ZoneRecord) []model.ZoneRecord {
	prev := make(map[int]model.ValveMode, len(before))
	for _, z := range before {
		prev[z.ID] = z.ValveMode
	}

	var changed []model.ZoneRecord
	for _, z := range after {
		if p, ok := prev[z.ID]; ok && p == z.ValveMode {
			continue
		}
		if _, ok := prev[z.ID]; !ok && z.ValveMode == model.ValveOff {
			continue
		}
		changed = append(changed, z)

		log.Info().Int("zone", z.ID).Str("name", z.Name).Int("pin", z.Pin).
			Str("mode", string(z.ValveMode)).Bool("open", z.ValveOpen).Msg("Valve changed")

		if c.deps.RecordValve != nil {
			ev := model.ValveEvent{
				ZoneID:   z.ID,
				ZoneName: z.Name,
				Pin:      z.Pin,
				Open:     z.ValveOpen,
				Mode:     z.ValveMode,
				At:       time.Now().UTC(),
			}
			if err := c.deps.RecordValve(ev); err != nil {
				log.Warn().Err(err).Int("zone", z.ID).Msg("Failed to record valve event")
			}
		}
	}
	return changed
}

// reportAnomalies notifies only when the set of unactuatable zones changes.
func (c *Controller) reportAnomalies(anomalies []output.Anomaly) {
	ids := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		ids = append(ids, fmt.Sprintf("%d(pin %d)", a.ZoneID, a.Pin))
	}
	sort.Strings(ids)
	key := strings.Join(ids, ",")

	if key == c.anomalyKey {
		return
	}
	c.anomalyKey = key
	if key != "" {
		c.notify("Zone without valid output", "Heat demand for zones "+key+" could not be actuated")
	}
}

// checkManifold warns once per excursion when heat is demanded while the
// manifold supply is below the minimum operating temperature. It never gates.
func (c *Controller) checkManifold(dec arbiter.Decision) float64 {
	if c.deps.Manifold == nil {
		return math.NaN()
	}
	temp, ok := c.deps.Manifold.Temperature()
	if !ok {
		return math.NaN()
	}

	low := dec.HasPrimary() && temp < c.settings.MinOperatingTemp
	if low && !c.lowManifold {
		log.Warn().Float64("manifold_temp", temp).Float64("min_operating_temp", c.settings.MinOperatingTemp).
			Msg("Manifold below minimum operating temperature while heating")
	}
	c.lowManifold = low
	return temp
}

func (c *Controller) emitMetrics(zones []model.ZoneRecord, dec arbiter.Decision, res output.Result, transitions int, manifold float64) {
	m := c.deps.Metrics
	if m == nil {
		return
	}

	m.Gauge("cycle.candidates", float64(dec.Candidates))
	m.Gauge("cycle.asserted_outputs", float64(len(res.Asserted)))
	m.Gauge("output.anomalies", float64(len(res.Anomalies)))
	m.Gauge("output.fuel_enabled", boolGauge(res.FuelOn))
	m.Gauge("output.pump_enabled", boolGauge(res.PumpOn))
	if transitions > 0 {
		m.Count("valve.transitions", int64(transitions))
	}
	if !math.IsNaN(manifold) {
		m.Gauge("manifold.temperature", manifold)
	}

	for _, z := range zones {
		tag := "zone:" + strconv.Itoa(z.ID)
		m.Gauge("zone.current_temp", z.CurrentTemp, tag)
		m.Gauge("zone.effective_target", arbiter.EffectiveTarget(z, c.settings.UseGas), tag)
		m.Gauge("zone.valve_open", boolGauge(z.ValveOpen), tag)
	}
}

func (c *Controller) notify(title, msg string) {
	if c.deps.Notifier == nil {
		return
	}
	if err := c.deps.Notifier.Send(title, msg); err != nil {
		log.Debug().Err(err).Str("title", title).Msg("Notification not sent")
	}
}

func validTemp(t, lo, hi float64) error {
	if math.IsNaN(t) || t < lo || t > hi {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidTemperature, t, lo, hi)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
