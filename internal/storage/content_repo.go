package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ContentStore defines the interface for the extraction cache.
type ContentStore interface {
	// Get returns the cached extracted content for an item.
	// Returns ErrNotFound if nothing has been extracted yet.
	Get(ctx context.Context, itemKey string) (*ExtractedContent, error)
	// Put writes the extracted content for an item, replacing any prior row.
	Put(ctx context.Context, content *ExtractedContent) error
	// Delete drops the cached extraction for an item.
	Delete(ctx context.Context, itemKey string) error
}

// ContentRepo provides methods for extraction-cache operations.
// It implements the ContentStore interface.
type ContentRepo struct {
	db *sql.DB
}

// NewContentRepo creates a new ContentRepo.
func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{db: db}
}

// Get returns the cached extracted content for an item.
func (r *ContentRepo) Get(ctx context.Context, itemKey string) (*ExtractedContent, error) {
	var c ExtractedContent
	var date sql.NullTime

	err := r.db.QueryRowContext(ctx,
		"SELECT item_key, extraction_method, extracted_text, content_hash, extraction_date FROM extracted_content WHERE item_key = ?",
		itemKey,
	).Scan(&c.ItemKey, &c.ExtractionMethod, &c.ExtractedText, &c.ContentHash, &date)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query extracted content: %w", err)
	}

	if date.Valid {
		c.ExtractionDate = date.Time
	}
	return &c, nil
}

// Put writes the extracted content for an item, replacing any prior row.
func (r *ContentRepo) Put(ctx context.Context, content *ExtractedContent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO extracted_content (item_key, extraction_method, extracted_text, content_hash, extraction_date)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (item_key) DO UPDATE SET
		 extraction_method = excluded.extraction_method,
		 extracted_text = excluded.extracted_text,
		 content_hash = excluded.content_hash,
		 extraction_date = excluded.extraction_date`,
		content.ItemKey, content.ExtractionMethod, content.ExtractedText, content.ContentHash, content.ExtractionDate,
	)
	if err != nil {
		return fmt.Errorf("failed to put extracted content: %w", err)
	}
	return nil
}

// Delete drops the cached extraction for an item.
func (r *ContentRepo) Delete(ctx context.Context, itemKey string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM extracted_content WHERE item_key = ?", itemKey)
	if err != nil {
		return fmt.Errorf("failed to delete extracted content: %w", err)
	}
	return nil
}
