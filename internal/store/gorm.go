package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"vigil/internal/domain"
)

// GormStore persists cache entries in a relational cache_entries table.
// Used with Postgres in deployments that already run one.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore connects with the given DSN and migrates the cache table.
func OpenGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing connection, migrating the cache table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&domain.CacheEntry{}); err != nil {
		return nil, fmt.Errorf("store: migrate cache_entries: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var entry domain.CacheEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: gorm get %q: %w", key, err)
	}
	return entry.Value, entry.StoredAt, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte, storedAt time.Time) error {
	entry := domain.CacheEntry{Key: key, Value: value, StoredAt: storedAt.UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "stored_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("store: gorm set %q: %w", key, err)
	}
	return nil
}

func (s *GormStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&domain.CacheEntry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("store: gorm remove %q: %w", key, err)
	}
	return nil
}
