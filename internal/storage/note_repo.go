package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// NoteStore defines the interface for note storage operations.
type NoteStore interface {
	// Upsert inserts a new note or replaces an existing one by key.
	// Child notes carry ParentItemKey; standalone notes carry CollectionKey.
	Upsert(ctx context.Context, note *Note) error
	// ListByItem returns the child notes of an item, newest sync first,
	// optionally filtered by title prefix.
	ListByItem(ctx context.Context, itemKey, titlePrefix string) ([]*Note, error)
	// ListStandalone returns notes without a parent item in a collection,
	// newest sync first, optionally filtered by title prefix.
	ListStandalone(ctx context.Context, collectionKey, titlePrefix string) ([]*Note, error)
}

// NoteRepo provides methods for note operations.
// It implements the NoteStore interface.
type NoteRepo struct {
	db *sql.DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Upsert inserts a new note or replaces an existing one by key.
func (r *NoteRepo) Upsert(ctx context.Context, note *Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (note_key, parent_item_key, collection_key, title, content, version, last_synced)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (note_key) DO UPDATE SET
		 parent_item_key = excluded.parent_item_key, collection_key = excluded.collection_key,
		 title = excluded.title, content = excluded.content,
		 version = excluded.version, last_synced = excluded.last_synced`,
		note.Key, note.ParentItemKey, note.CollectionKey, note.Title, note.Content, note.Version, note.LastSynced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

// ListByItem returns the child notes of an item, newest sync first.
// titlePrefix filters by title when non-empty.
func (r *NoteRepo) ListByItem(ctx context.Context, itemKey, titlePrefix string) ([]*Note, error) {
	query := "SELECT note_key, parent_item_key, collection_key, title, content, version, last_synced FROM notes WHERE parent_item_key = ?"
	args := []any{itemKey}
	if titlePrefix != "" {
		query += " AND title LIKE ?"
		args = append(args, titlePrefix+"%")
	}
	query += " ORDER BY last_synced DESC"
	return r.list(ctx, query, args...)
}

// ListStandalone returns notes without a parent item in a collection,
// newest sync first. titlePrefix filters by title when non-empty.
func (r *NoteRepo) ListStandalone(ctx context.Context, collectionKey, titlePrefix string) ([]*Note, error) {
	query := "SELECT note_key, parent_item_key, collection_key, title, content, version, last_synced FROM notes WHERE collection_key = ? AND parent_item_key IS NULL"
	args := []any{collectionKey}
	if titlePrefix != "" {
		query += " AND title LIKE ?"
		args = append(args, titlePrefix+"%")
	}
	query += " ORDER BY last_synced DESC"
	return r.list(ctx, query, args...)
}

func (r *NoteRepo) list(ctx context.Context, query string, args ...any) ([]*Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*Note
	for rows.Next() {
		var note Note
		var parent, collection sql.NullString
		var lastSynced sql.NullTime
		if err := rows.Scan(&note.Key, &parent, &collection, &note.Title, &note.Content, &note.Version, &lastSynced); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		if parent.Valid {
			note.ParentItemKey = &parent.String
		}
		if collection.Valid {
			note.CollectionKey = &collection.String
		}
		if lastSynced.Valid {
			note.LastSynced = lastSynced.Time
		}
		out = append(out, &note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}
