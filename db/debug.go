package db

import (
	"fmt"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

// ReadSettingsImageCLI opens dbPath and returns the stored settings image.
func ReadSettingsImageCLI(dbPath string) ([]byte, bool, error) {
	dbConn, err := Open(dbPath)
	if err != nil {
		return nil, false, err
	}
	defer dbConn.Close()
	return LoadSettingsImage(dbConn)
}

// WriteSettingsImageCLI replaces the stored settings image in dbPath.
func WriteSettingsImageCLI(dbPath string, image []byte) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	tx, err := StartTransaction(dbConn)
	if err != nil {
		return err
	}
	if err := SaveSettingsImageWithTx(tx, image); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func ListValveEventsCLI(dbPath string, zoneID, limit int) ([]model.ValveEvent, error) {
	dbConn, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()

	if zoneID == model.NoZone {
		return RecentValveEvents(dbConn, limit)
	}
	return ValveEventsForZone(dbConn, zoneID, limit)
}
