package models

import "time"

// LocalEntry is one key of the on-device state that survives restarts:
// the cached credential, remote location ids, cached settings and schema version.
type LocalEntry struct {
	Key       string `gorm:"column:entry_key;primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}
