package configstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/thatsimonsguy/manifold-controller/db"
)

// Medium is non-volatile storage holding one settings image.
type Medium interface {
	Acquire() (Session, error)
}

// Session is a scoped critical section on a Medium. Release must always be
// called, including after a failed Commit.
type Session interface {
	// Read returns the current image, or nil when nothing was stored.
	Read() ([]byte, error)
	Commit(image []byte) error
	Release() error
}

// FileMedium stores the image in a file, replaced atomically on commit.
type FileMedium struct {
	Path string
}

func (m FileMedium) Acquire() (Session, error) {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &fileSession{path: m.Path}, nil
}

type fileSession struct {
	path string
}

func (s *fileSession) Read() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

func (s *fileSession) Commit(image []byte) error {
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := file.Write(image); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Release drops a temp file left behind by an interrupted commit.
func (s *fileSession) Release() error {
	err := os.Remove(s.path + ".tmp")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SQLiteMedium stores the image as a single row of the controller database.
// Each session is one transaction.
type SQLiteMedium struct {
	DB *sqlx.DB
}

func (m SQLiteMedium) Acquire() (Session, error) {
	tx, err := db.StartTransaction(m.DB)
	if err != nil {
		return nil, err
	}
	return &sqliteSession{tx: tx}, nil
}

type sqliteSession struct {
	tx *sqlx.Tx
}

func (s *sqliteSession) Read() ([]byte, error) {
	image, _, err := db.LoadSettingsImage(s.tx)
	return image, err
}

func (s *sqliteSession) Commit(image []byte) error {
	if err := db.SaveSettingsImageWithTx(s.tx, image); err != nil {
		return err
	}
	return db.CommitTransaction(s.tx)
}

func (s *sqliteSession) Release() error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
