package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ItemStore defines the interface for item storage operations.
type ItemStore interface {
	// Upsert inserts a new item or refreshes an existing one by key.
	Upsert(ctx context.Context, item *Item) error
	// Get gets an item by key. Returns ErrNotFound if not found.
	Get(ctx context.Context, key string) (*Item, error)
	// AddToCollection records collection membership (idempotent).
	AddToCollection(ctx context.Context, collectionKey, itemKey string) error
	// ListByCollection returns all items that are members of a collection.
	ListByCollection(ctx context.Context, collectionKey string) ([]*Item, error)
	// RemoveOrphaned deletes cached items whose keys are absent from validKeys.
	// With a non-nil collectionKey only that collection's members are
	// considered. Children cascade. Returns the number of items removed.
	RemoveOrphaned(ctx context.Context, validKeys map[string]struct{}, collectionKey *string) (int, error)
	// RemoveOrphanedChildren deletes attachments and notes of an item whose
	// keys are absent from validKeys. Returns the number of rows removed.
	RemoveOrphanedChildren(ctx context.Context, parentKey string, validKeys map[string]struct{}) (int, error)
}

// ItemRepo provides methods for item operations.
// It implements the ItemStore interface.
type ItemRepo struct {
	db *sql.DB
}

// NewItemRepo creates a new ItemRepo.
func NewItemRepo(db *sql.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// Upsert inserts a new item or refreshes an existing one by key.
func (r *ItemRepo) Upsert(ctx context.Context, item *Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (item_key, item_type, title, date, url, metadata, version, last_synced)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (item_key) DO UPDATE SET
		 item_type = excluded.item_type, title = excluded.title, date = excluded.date,
		 url = excluded.url, metadata = excluded.metadata, version = excluded.version,
		 last_synced = excluded.last_synced`,
		item.Key, item.ItemType, item.Title, item.Date, item.URL, item.Metadata, item.Version, item.LastSynced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

// Get gets an item by key. Returns ErrNotFound if not found.
func (r *ItemRepo) Get(ctx context.Context, key string) (*Item, error) {
	var item Item
	var lastSynced sql.NullTime

	err := r.db.QueryRowContext(ctx,
		"SELECT item_key, item_type, title, date, url, metadata, version, last_synced FROM items WHERE item_key = ?",
		key,
	).Scan(&item.Key, &item.ItemType, &item.Title, &item.Date, &item.URL, &item.Metadata, &item.Version, &lastSynced)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	if lastSynced.Valid {
		item.LastSynced = lastSynced.Time
	}
	return &item, nil
}

// AddToCollection records collection membership (idempotent).
func (r *ItemRepo) AddToCollection(ctx context.Context, collectionKey, itemKey string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collection_items (collection_key, item_key) VALUES (?, ?)",
		collectionKey, itemKey,
	)
	if err != nil {
		return fmt.Errorf("failed to add item to collection: %w", err)
	}
	return nil
}

// ListByCollection returns all items that are members of a collection.
func (r *ItemRepo) ListByCollection(ctx context.Context, collectionKey string) ([]*Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.item_key, i.item_type, i.title, i.date, i.url, i.metadata, i.version, i.last_synced
		 FROM items i
		 JOIN collection_items ci ON i.item_key = ci.item_key
		 WHERE ci.collection_key = ?
		 ORDER BY i.item_key`,
		collectionKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*Item
	for rows.Next() {
		var item Item
		var lastSynced sql.NullTime
		if err := rows.Scan(&item.Key, &item.ItemType, &item.Title, &item.Date, &item.URL, &item.Metadata, &item.Version, &lastSynced); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if lastSynced.Valid {
			item.LastSynced = lastSynced.Time
		}
		out = append(out, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}

// RemoveOrphaned deletes cached items whose keys are absent from validKeys.
// The whole reconciliation runs in one transaction; attachment, note,
// membership, chunk and index-state rows cascade with each deleted item.
func (r *ItemRepo) RemoveOrphaned(ctx context.Context, validKeys map[string]struct{}, collectionKey *string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var rows *sql.Rows
	if collectionKey != nil {
		rows, err = tx.QueryContext(ctx,
			"SELECT DISTINCT item_key FROM collection_items WHERE collection_key = ?",
			*collectionKey,
		)
	} else {
		rows, err = tx.QueryContext(ctx, "SELECT item_key FROM items")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query cached item keys: %w", err)
	}

	var cached []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan item key: %w", err)
		}
		cached = append(cached, key)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("row iteration error: %w", err)
	}
	_ = rows.Close()

	removed := 0
	for _, key := range cached {
		if _, ok := validKeys[key]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE item_key = ?", key); err != nil {
			return 0, fmt.Errorf("failed to delete orphaned item %s: %w", key, err)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit orphan removal: %w", err)
	}
	return removed, nil
}

// RemoveOrphanedChildren deletes attachments and notes of an item whose keys
// are absent from validKeys, in one transaction.
func (r *ItemRepo) RemoveOrphanedChildren(ctx context.Context, parentKey string, validKeys map[string]struct{}) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	removed := 0
	for _, q := range []struct {
		list string
		del  string
	}{
		{"SELECT attachment_key FROM attachments WHERE parent_item_key = ?", "DELETE FROM attachments WHERE attachment_key = ?"},
		{"SELECT note_key FROM notes WHERE parent_item_key = ?", "DELETE FROM notes WHERE note_key = ?"},
	} {
		rows, err := tx.QueryContext(ctx, q.list, parentKey)
		if err != nil {
			return 0, fmt.Errorf("failed to query child keys: %w", err)
		}
		var cached []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				_ = rows.Close()
				return 0, fmt.Errorf("failed to scan child key: %w", err)
			}
			cached = append(cached, key)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("row iteration error: %w", err)
		}
		_ = rows.Close()

		for _, key := range cached {
			if _, ok := validKeys[key]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, q.del, key); err != nil {
				return 0, fmt.Errorf("failed to delete orphaned child %s: %w", key, err)
			}
			removed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit child orphan removal: %w", err)
	}
	return removed, nil
}
