package database

import (
	"errors"
	"fmt"

	"github.com/veritasvoid/TradeZen/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaVersion tags the layout of the locally cached state. Bump it when the
// cached settings shape changes.
const SchemaVersion = "2"

// NewDatabase opens the local state database and migrates it.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the local entries table and applies the schema version.
// On a version change only the settings cache is dropped: the credential and
// the remote location ids must survive so the journal reattaches to the same store.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.LocalEntry{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	var version models.LocalEntry
	err := db.First(&version, "entry_key = ?", keySchemaVersion).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if err == nil && version.Value == SchemaVersion {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.LocalEntry{}, "entry_key = ?", keySettings).Error; err != nil {
			return fmt.Errorf("failed to drop cached settings: %w", err)
		}
		if err := tx.Save(&models.LocalEntry{Key: keySchemaVersion, Value: SchemaVersion}).Error; err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}
		return nil
	})
}
