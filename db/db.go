package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings_image (
	id INTEGER PRIMARY KEY CHECK(id=1),
	image BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS valve_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zone_id INTEGER NOT NULL,
	zone_name TEXT NOT NULL DEFAULT '',
	pin INTEGER NOT NULL,
	open BOOLEAN NOT NULL,
	mode TEXT NOT NULL,
	at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_valve_events_at ON valve_events(at);
`

// Open opens (creating if needed) the controller database and applies the schema.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*sqlx.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway, and :memory: is per-connection.
	db.SetMaxOpenConns(1)

	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("Database ready")
	return db, nil
}

func ApplySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
