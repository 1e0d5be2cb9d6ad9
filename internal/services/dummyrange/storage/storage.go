// Package storage defines persistence contracts for dummyrange state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// CacheEntry is one persisted profile-cache value.
type CacheEntry struct {
	Kind      string
	Arg       string
	Value     []byte
	CreatedAt time.Time
}

// CacheStore persists profile-cache entries across restarts.
type CacheStore interface {
	PutCacheEntry(ctx context.Context, entry CacheEntry) error
	ListCacheEntries(ctx context.Context) ([]CacheEntry, error)
	ClearCacheEntries(ctx context.Context) error
}

// Snapshot is one saved range state, stored as an opaque JSON payload.
type Snapshot struct {
	Name    string
	Payload []byte
	SavedAt time.Time
}

// SnapshotStore persists named range snapshots.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, snapshot Snapshot) error
	GetSnapshot(ctx context.Context, name string) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, name string) error
}
