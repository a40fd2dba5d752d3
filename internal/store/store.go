// Package store abstracts the persistent key-value layer the caches sit
// on. Values are opaque bytes tagged with the time they were stored; TTL
// policy belongs to the callers, not the store. Every implementation is
// safe to wipe at any time: consumers degrade to "no signal" on cache
// loss, never to a wrong one.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("store: key not found")

type Store interface {
	// Get returns the value and the time it was stored.
	Get(ctx context.Context, key string) ([]byte, time.Time, error)
	// Set replaces the value for key. Last writer wins.
	Set(ctx context.Context, key string, value []byte, storedAt time.Time) error
	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
