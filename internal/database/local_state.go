package database

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/veritasvoid/TradeZen/internal/models"
	"gorm.io/gorm"
)

const (
	keyToken         = "auth_token"
	keySpreadsheetID = "sheet_id"
	keyFolderID      = "drive_folder_id"
	keySettings      = "settings"
	keySchemaVersion = "schema_version"
)

// LocalState is the key-value state kept on this device.
type LocalState struct {
	db *gorm.DB
}

// NewLocalState wraps an opened database.
func NewLocalState(db *gorm.DB) *LocalState {
	return &LocalState{db: db}
}

func (s *LocalState) get(key string) (string, error) {
	var entry models.LocalEntry
	err := s.db.First(&entry, "entry_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return entry.Value, nil
}

func (s *LocalState) set(key, value string) error {
	if err := s.db.Save(&models.LocalEntry{Key: key, Value: value}).Error; err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *LocalState) remove(key string) error {
	if err := s.db.Delete(&models.LocalEntry{}, "entry_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Token returns the cached access credential, or "" when there is none.
func (s *LocalState) Token() (string, error) { return s.get(keyToken) }

// SaveToken caches the access credential.
func (s *LocalState) SaveToken(token string) error { return s.set(keyToken, token) }

// ClearToken forgets the cached credential. Location ids are left alone.
func (s *LocalState) ClearToken() error { return s.remove(keyToken) }

// SpreadsheetID returns the id of the journal spreadsheet, or "".
func (s *LocalState) SpreadsheetID() (string, error) { return s.get(keySpreadsheetID) }

// SetSpreadsheetID remembers the journal spreadsheet.
func (s *LocalState) SetSpreadsheetID(id string) error { return s.set(keySpreadsheetID, id) }

// FolderID returns the id of the screenshots folder, or "".
func (s *LocalState) FolderID() (string, error) { return s.get(keyFolderID) }

// SetFolderID remembers the screenshots folder.
func (s *LocalState) SetFolderID(id string) error { return s.set(keyFolderID, id) }

// CachedSettings returns the last settings object written on this device.
// ok is false when nothing has been cached yet.
func (s *LocalState) CachedSettings() (values map[string]any, ok bool, err error) {
	raw, err := s.get(keySettings)
	if err != nil || raw == "" {
		return nil, false, err
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached settings: %w", err)
	}
	return values, true, nil
}

// SaveSettings caches the full settings object.
func (s *LocalState) SaveSettings(values map[string]any) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return s.set(keySettings, string(raw))
}
