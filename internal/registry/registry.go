package registry

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

var (
	ErrZoneNotFound = errors.New("zone not found")
	ErrUnassignedID = errors.New("zone id is not assigned")
)

// Registry owns every ZoneRecord and the id -> pin assignment table.
type Registry struct {
	mu    sync.RWMutex
	zones []model.ZoneRecord
	index map[int]int
	pins  map[int]int
}

func New(assignments map[int]int) *Registry {
	r := &Registry{
		index: make(map[int]int),
		pins:  make(map[int]int, len(assignments)),
	}
	for id, pin := range assignments {
		r.pins[id] = pin
	}
	return r
}

// Upsert merges rec into the zone with the same id, or appends it as a new zone.
// Fields only overwrite when present in rec; Forced and Reachable always overwrite.
// Valve state is never touched here. Returns true when a new zone was created.
func (r *Registry) Upsert(rec model.ZoneRecord) (bool, error) {
	if rec.ID == model.NoZone {
		return false, ErrUnassignedID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[rec.ID]; ok {
		merge(&r.zones[i], rec)
		log.Debug().Int("zone", rec.ID).Str("name", r.zones[i].Name).Msg("Updated zone")
		return false, nil
	}

	z := model.NewZoneRecord(rec.ID)
	if pin, ok := r.pins[rec.ID]; ok {
		z.Pin = pin
	}
	merge(&z, rec)

	r.index[z.ID] = len(r.zones)
	r.zones = append(r.zones, z)

	log.Info().Int("zone", z.ID).Str("name", z.Name).Int("pin", z.Pin).Msg("Added zone")
	return true, nil
}

func merge(dst *model.ZoneRecord, src model.ZoneRecord) {
	if src.TargetRemote != 0 {
		dst.TargetRemote = src.TargetRemote
	}
	if src.TargetLocal != 0 {
		dst.TargetLocal = src.TargetLocal
	}
	if src.Pin != model.PinUnassigned {
		dst.Pin = src.Pin
	}
	if src.CurrentTemp != 0 && (src.CurrentTemp != dst.CurrentTemp || len(dst.History) == 0) {
		dst.CurrentTemp = src.CurrentTemp
		dst.History = appendHistory(dst.History, src.CurrentTemp)
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.BatteryState != "" {
		dst.BatteryState = src.BatteryState
	}
	if src.BatteryLevel != 0 {
		dst.BatteryLevel = src.BatteryLevel
	}
	if src.RFStrength != 0 {
		dst.RFStrength = src.RFStrength
	}
	if src.Anticipating != "" {
		dst.Anticipating = src.Anticipating
	}
	if src.Type != "" {
		dst.Type = src.Type
	}

	dst.Reachable = src.Reachable
	dst.Forced = src.Forced
}

func appendHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if over := len(h) - model.HistorySize; over > 0 {
		h = append(h[:0:0], h[over:]...)
	}
	return h
}

// ResetValves closes every valve. Run before each arbitration cycle.
func (r *Registry) ResetValves() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.zones {
		r.zones[i].ValveOpen = false
		r.zones[i].ValveMode = model.ValveOff
	}
}

// SetValve sets the valve state of a zone. ValveOff always means closed and any
// other mode means open, whatever open says.
func (r *Registry) SetValve(id int, open bool, mode model.ValveMode) (changed bool, found bool) {
	if mode == "" {
		mode = model.ValveOff
	}
	open = mode != model.ValveOff

	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		log.Warn().Int("zone", id).Msg("Valve update for unknown zone")
		return false, false
	}

	z := &r.zones[i]
	if z.ValveOpen == open && z.ValveMode == mode {
		return false, true
	}
	z.ValveOpen = open
	z.ValveMode = mode
	log.Debug().Int("zone", id).Str("mode", string(mode)).Msg("Valve set")
	return true, true
}

// ByID returns a copy of the zone with the given id.
func (r *Registry) ByID(id int) (model.ZoneRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return model.ZoneRecord{}, false
	}
	return r.zones[i].Clone(), true
}

// All returns copies of every zone in insertion order.
func (r *Registry) All() []model.ZoneRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ZoneRecord, len(r.zones))
	for i := range r.zones {
		out[i] = r.zones[i].Clone()
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}

// AssignPin records pin for id and, when the zone is known, updates its live pin.
// Returns whether the zone exists.
func (r *Registry) AssignPin(id, pin int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins[id] = pin
	i, ok := r.index[id]
	if ok {
		r.zones[i].Pin = pin
	}
	log.Info().Int("zone", id).Int("pin", pin).Bool("known", ok).Msg("Pin assignment updated")
	return ok
}

// PinAssignments returns a copy of the id -> pin table.
func (r *Registry) PinAssignments() map[int]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]int, len(r.pins))
	for id, pin := range r.pins {
		out[id] = pin
	}
	return out
}

// SetForced toggles the manual override of a zone without touching other fields.
func (r *Registry) SetForced(id int, forced bool) error {
	return r.mutate(id, func(z *model.ZoneRecord) { z.Forced = forced })
}

// SetTargetLocal sets the local override setpoint. Unlike Upsert, zero is accepted.
func (r *Registry) SetTargetLocal(id int, temp float64) error {
	return r.mutate(id, func(z *model.ZoneRecord) { z.TargetLocal = temp })
}

// SetTargetRemote mirrors a setpoint pushed to the remote thermostat service.
func (r *Registry) SetTargetRemote(id int, temp float64) error {
	return r.mutate(id, func(z *model.ZoneRecord) { z.TargetRemote = temp })
}

func (r *Registry) mutate(id int, fn func(z *model.ZoneRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return ErrZoneNotFound
	}
	fn(&r.zones[i])
	return nil
}
