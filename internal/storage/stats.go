package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StatsRepo aggregates cache-wide counts for status reporting.
type StatsRepo struct {
	db *sql.DB
}

// NewStatsRepo creates a new StatsRepo.
func NewStatsRepo(db *sql.DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// CacheInfo returns cached-state statistics for one collection.
// Returns ErrNotInitialized if the collection has never been synced.
func (r *StatsRepo) CacheInfo(ctx context.Context, collectionKey string) (*CacheInfo, error) {
	info := &CacheInfo{CollectionKey: collectionKey}

	var lastSync sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT last_sync_version, last_sync_time, full_sync_completed FROM sync_state WHERE collection_key = ?",
		collectionKey,
	).Scan(&info.LastSyncVersion, &lastSync, &info.FullSyncCompleted)
	if err == sql.ErrNoRows {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}
	if lastSync.Valid {
		s := lastSync.Time.UTC().Format(time.RFC3339)
		info.LastSyncTime = &s
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT name FROM collections WHERE collection_key = ?", collectionKey,
	).Scan(&info.CollectionName); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query collection name: %w", err)
	}

	counts := []struct {
		query string
		args  []any
		dest  *int
	}{
		{"SELECT COUNT(*) FROM collection_items WHERE collection_key = ?",
			[]any{collectionKey}, &info.ItemCount},
		{`SELECT COUNT(*) FROM attachments a
		  JOIN collection_items ci ON a.parent_item_key = ci.item_key
		  WHERE ci.collection_key = ?`, []any{collectionKey}, &info.AttachmentCount},
		{`SELECT COUNT(*) FROM extracted_content ec
		  JOIN collection_items ci ON ec.item_key = ci.item_key
		  WHERE ci.collection_key = ?`, []any{collectionKey}, &info.ExtractedCount},
		{`SELECT COUNT(*) FROM notes
		  WHERE collection_key = ? OR parent_item_key IN (
		    SELECT item_key FROM collection_items WHERE collection_key = ?
		  )`, []any{collectionKey, collectionKey}, &info.NoteCount},
		{`SELECT COUNT(*) FROM index_state s
		  JOIN collection_items ci ON s.item_key = ci.item_key
		  WHERE ci.collection_key = ?`, []any{collectionKey}, &info.IndexedItemCount},
		{`SELECT COUNT(*) FROM chunks c
		  JOIN collection_items ci ON c.item_key = ci.item_key
		  WHERE ci.collection_key = ?`, []any{collectionKey}, &info.ChunkCount},
	}

	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to query cache counts: %w", err)
		}
	}

	return info, nil
}
