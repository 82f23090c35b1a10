package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// CollectionStore defines the interface for collection storage operations.
type CollectionStore interface {
	// Upsert inserts a new collection or refreshes an existing one. The parent
	// pointer is never touched here: sync runs a two-phase upsert and patches
	// parents through SetParent once every node exists.
	Upsert(ctx context.Context, c *Collection) error
	// SetParent patches the parent pointer of a collection.
	SetParent(ctx context.Context, key string, parentKey *string) error
	// Get gets a collection by key. Returns ErrNotFound if not found.
	Get(ctx context.Context, key string) (*Collection, error)
	// ListChildren returns the direct subcollections of a collection.
	ListChildren(ctx context.Context, parentKey string) ([]*Collection, error)
}

// CollectionRepo provides methods for collection operations.
// It implements the CollectionStore interface.
type CollectionRepo struct {
	db *sql.DB
}

// NewCollectionRepo creates a new CollectionRepo.
func NewCollectionRepo(db *sql.DB) *CollectionRepo {
	return &CollectionRepo{db: db}
}

// Upsert inserts a new collection or refreshes name, version and last_synced
// of an existing one. parent_key is inserted as NULL on first sight and left
// alone on refresh so a row replace never cascades away sync state.
func (r *CollectionRepo) Upsert(ctx context.Context, c *Collection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collections (collection_key, name, parent_key, version, last_synced)
		 VALUES (?, ?, NULL, ?, ?)
		 ON CONFLICT (collection_key) DO UPDATE SET
		 name = excluded.name, version = excluded.version, last_synced = excluded.last_synced`,
		c.Key, c.Name, c.Version, c.LastSynced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert collection: %w", err)
	}
	return nil
}

// SetParent patches the parent pointer of a collection. Passing nil detaches
// the collection from its parent.
func (r *CollectionRepo) SetParent(ctx context.Context, key string, parentKey *string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE collections SET parent_key = ? WHERE collection_key = ?",
		parentKey, key,
	)
	if err != nil {
		return fmt.Errorf("failed to set collection parent: %w", err)
	}
	return nil
}

// Get gets a collection by key. Returns ErrNotFound if not found.
func (r *CollectionRepo) Get(ctx context.Context, key string) (*Collection, error) {
	var c Collection
	var parent sql.NullString
	var lastSynced sql.NullTime

	err := r.db.QueryRowContext(ctx,
		"SELECT collection_key, name, parent_key, version, last_synced FROM collections WHERE collection_key = ?",
		key,
	).Scan(&c.Key, &c.Name, &parent, &c.Version, &lastSynced)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	if parent.Valid {
		c.ParentKey = &parent.String
	}
	if lastSynced.Valid {
		c.LastSynced = lastSynced.Time
	}
	return &c, nil
}

// ListChildren returns the direct subcollections of a collection, ordered by name.
func (r *CollectionRepo) ListChildren(ctx context.Context, parentKey string) ([]*Collection, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT collection_key, name, parent_key, version, last_synced FROM collections WHERE parent_key = ? ORDER BY name",
		parentKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subcollections: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*Collection
	for rows.Next() {
		var c Collection
		var parent sql.NullString
		var lastSynced sql.NullTime
		if err := rows.Scan(&c.Key, &c.Name, &parent, &c.Version, &lastSynced); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		if parent.Valid {
			c.ParentKey = &parent.String
		}
		if lastSynced.Valid {
			c.LastSynced = lastSynced.Time
		}
		out = append(out, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}
