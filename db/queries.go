package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

// LoadSettingsImage returns the stored settings image, or found=false when none was saved.
func LoadSettingsImage(q sqlx.Queryer) ([]byte, bool, error) {
	var image []byte
	err := sqlx.Get(q, &image, `SELECT image FROM settings_image WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get settings image: %w", err)
	}
	return image, true, nil
}

// RecentValveEvents returns up to limit valve events, newest first.
func RecentValveEvents(db *sqlx.DB, limit int) ([]model.ValveEvent, error) {
	events := []model.ValveEvent{}
	err := db.Select(&events, `SELECT id, zone_id, zone_name, pin, open, mode, at
		FROM valve_events ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query valve events: %w", err)
	}
	return events, nil
}

// ValveEventsForZone returns up to limit valve events of one zone, newest first.
func ValveEventsForZone(db *sqlx.DB, zoneID, limit int) ([]model.ValveEvent, error) {
	events := []model.ValveEvent{}
	err := db.Select(&events, `SELECT id, zone_id, zone_name, pin, open, mode, at
		FROM valve_events WHERE zone_id = ? ORDER BY at DESC, id DESC LIMIT ?`, zoneID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query valve events for zone %d: %w", zoneID, err)
	}
	return events, nil
}
