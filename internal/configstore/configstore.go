// Package configstore persists the operator settings and a bounded snapshot of
// zone overrides in a fixed binary layout.
package configstore

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

var ErrCommitFailed = errors.New("storage commit failed")

// Upserter receives zones restored from storage.
type Upserter interface {
	Upsert(rec model.ZoneRecord) (bool, error)
}

type Store struct {
	medium Medium
}

func New(m Medium) *Store {
	return &Store{medium: m}
}

// Save writes settings and the first MaxZones zones. On failure the previously
// committed image is left in place.
func (s *Store) Save(settings model.Settings, zones []model.ZoneRecord) (err error) {
	sess, err := s.medium.Acquire()
	if err != nil {
		return fmt.Errorf("failed to acquire storage: %w", err)
	}
	defer func() {
		if rerr := sess.Release(); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to release storage")
		}
	}()

	if len(zones) > MaxZones {
		log.Warn().Int("zones", len(zones)).Int("max", MaxZones).Msg("Persisting only the first zones")
	}

	if err := sess.Commit(Encode(settings, zones)); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	log.Debug().Bool("use_gas", settings.UseGas).Bool("boost", settings.BoostEnabled).
		Float64("min_operating_temp", settings.MinOperatingTemp).Int("zones", min(len(zones), MaxZones)).
		Msg("Settings saved")
	return nil
}

// Load reads the stored image and merges its zones into reg. found is false,
// with a nil error, when storage is blank or carries a foreign marker.
func (s *Store) Load(reg Upserter) (model.Settings, bool, error) {
	sess, err := s.medium.Acquire()
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("failed to acquire storage: %w", err)
	}
	defer func() {
		if rerr := sess.Release(); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to release storage")
		}
	}()

	image, err := sess.Read()
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("failed to read storage: %w", err)
	}

	settings, zones, ok := Decode(image)
	if !ok {
		log.Info().Int("bytes", len(image)).Msg("No stored configuration, using defaults")
		return model.Settings{}, false, nil
	}

	for _, z := range zones {
		if _, err := reg.Upsert(z); err != nil {
			log.Warn().Err(err).Int("zone", z.ID).Msg("Skipping stored zone")
		}
	}

	log.Info().Bool("use_gas", settings.UseGas).Bool("boost", settings.BoostEnabled).
		Float64("min_operating_temp", settings.MinOperatingTemp).Int("zones", len(zones)).
		Msg("Loaded stored configuration")
	return settings, true, nil
}
