package models

import "time"

// CacheEntry backs the database cache store used when several engine
// processes want to share (still TTL-bound) permission check results.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
