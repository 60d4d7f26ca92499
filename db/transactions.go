package db

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sqlx.DB) (*sqlx.Tx, error) {
	tx, err := db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sqlx.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction. It is a no-op after a commit.
func RollbackTransaction(tx *sqlx.Tx) {
	tx.Rollback()
}

func SaveSettingsImageWithTx(tx *sqlx.Tx, image []byte) error {
	_, err := tx.Exec(`INSERT INTO settings_image (id, image, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET image = excluded.image, updated_at = excluded.updated_at`,
		image, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save settings image: %w", err)
	}
	return nil
}

func RecordValveEvent(db *sqlx.DB, ev model.ValveEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	_, err := db.NamedExec(`INSERT INTO valve_events (zone_id, zone_name, pin, open, mode, at)
		VALUES (:zone_id, :zone_name, :pin, :open, :mode, :at)`, ev)
	if err != nil {
		return fmt.Errorf("record valve event for zone %d: %w", ev.ZoneID, err)
	}
	return nil
}

// PruneValveEvents deletes events older than cutoff and returns how many were removed.
func PruneValveEvents(db *sqlx.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM valve_events WHERE at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune valve events: %w", err)
	}
	return res.RowsAffected()
}
