package domain

import "time"

// CacheEntry is the relational row backing the key-value store when the
// service persists through Postgres.
type CacheEntry struct {
	Key      string    `gorm:"primaryKey;size:255"`
	Value    []byte    `gorm:"type:bytea"`
	StoredAt time.Time `gorm:"index"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}
