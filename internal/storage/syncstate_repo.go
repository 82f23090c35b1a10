package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SyncStateStore defines the interface for sync-state bookkeeping.
type SyncStateStore interface {
	// Get returns the sync state for a collection. Returns ErrNotInitialized
	// when no state row exists, i.e. the collection has never been synced.
	Get(ctx context.Context, collectionKey string) (*SyncState, error)
	// Init creates a zeroed sync-state row for a collection if absent.
	Init(ctx context.Context, collectionKey string) error
	// Put writes the sync state for a collection.
	Put(ctx context.Context, state *SyncState) error
}

// SyncStateRepo provides methods for sync-state operations.
// It implements the SyncStateStore interface.
type SyncStateRepo struct {
	db *sql.DB
}

// NewSyncStateRepo creates a new SyncStateRepo.
func NewSyncStateRepo(db *sql.DB) *SyncStateRepo {
	return &SyncStateRepo{db: db}
}

// Get returns the sync state for a collection, or ErrNotInitialized.
func (r *SyncStateRepo) Get(ctx context.Context, collectionKey string) (*SyncState, error) {
	var st SyncState
	var lastSync sql.NullTime

	err := r.db.QueryRowContext(ctx,
		"SELECT collection_key, last_sync_version, last_sync_time, full_sync_completed FROM sync_state WHERE collection_key = ?",
		collectionKey,
	).Scan(&st.CollectionKey, &st.LastSyncVersion, &lastSync, &st.FullSyncCompleted)

	if err == sql.ErrNoRows {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}

	if lastSync.Valid {
		st.LastSyncTime = &lastSync.Time
	}
	return &st, nil
}

// Init creates a zeroed sync-state row for a collection if absent.
func (r *SyncStateRepo) Init(ctx context.Context, collectionKey string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sync_state (collection_key, last_sync_version, last_sync_time, full_sync_completed) VALUES (?, 0, NULL, FALSE)",
		collectionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to init sync state: %w", err)
	}
	return nil
}

// Put writes the sync state for a collection.
func (r *SyncStateRepo) Put(ctx context.Context, state *SyncState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_state (collection_key, last_sync_version, last_sync_time, full_sync_completed)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection_key) DO UPDATE SET
		 last_sync_version = excluded.last_sync_version,
		 last_sync_time = excluded.last_sync_time,
		 full_sync_completed = excluded.full_sync_completed`,
		state.CollectionKey, state.LastSyncVersion, state.LastSyncTime, state.FullSyncCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to put sync state: %w", err)
	}
	return nil
}
