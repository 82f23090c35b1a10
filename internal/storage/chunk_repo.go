package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CandidateFilter prunes the chunk candidate set before scoring.
// Empty slices mean "no filter on this axis".
type CandidateFilter struct {
	ItemTypes []string
	DocTypes  []string
	ItemKeys  []string
}

// VectorStats summarizes the vectorized state of the store.
type VectorStats struct {
	IndexedItems int            `json:"indexed_items"`
	TotalChunks  int            `json:"total_chunks"`
	ModelCounts  map[string]int `json:"model_counts"`
}

// ChunkStore defines the interface for chunk and index-state storage.
type ChunkStore interface {
	// ReplaceChunks atomically replaces all chunks of an item and upserts its
	// index state. Stale and fresh embeddings are never visible together.
	ReplaceChunks(ctx context.Context, itemKey string, chunks []*ChunkRecord, state *IndexState) error
	// DeleteForItem removes an item's chunks and index state in one transaction.
	DeleteForItem(ctx context.Context, itemKey string) error
	// ListCandidates returns chunk rows matching the filter, embeddings included.
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]*ChunkRecord, error)
	// GetIndexState returns the index state for an item, or ErrNotFound.
	GetIndexState(ctx context.Context, itemKey string) (*IndexState, error)
	// CountForItem returns the number of stored chunks for an item.
	CountForItem(ctx context.Context, itemKey string) (int, error)
	// Stats returns aggregate vectorization statistics.
	Stats(ctx context.Context) (*VectorStats, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks atomically replaces all chunks of an item and upserts its
// index state. The delete and the inserts share one transaction so a
// re-index never leaves a partial overlap of old and new rows.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, itemKey string, chunks []*ChunkRecord, state *IndexState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE item_key = ?", itemKey); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_state WHERE item_key = ?", itemKey); err != nil {
		return fmt.Errorf("failed to delete old index state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (item_key, chunk_index, text, embedding, page_number, section_id, char_start, char_end, item_type, doc_type, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, itemKey, c.ChunkIndex, c.Text, c.Embedding,
			c.PageNumber, c.SectionID, c.CharStart, c.CharEnd, c.ItemType, c.DocType, c.ContentHash); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO index_state (item_key, chunk_count, content_hash, embedding_model, indexed_at) VALUES (?, ?, ?, ?, ?)",
		state.ItemKey, state.ChunkCount, state.ContentHash, state.EmbeddingModel, state.IndexedAt); err != nil {
		return fmt.Errorf("failed to upsert index state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}
	return nil
}

// DeleteForItem removes an item's chunks and index state in one transaction.
func (r *ChunkRepo) DeleteForItem(ctx context.Context, itemKey string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE item_key = ?", itemKey); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_state WHERE item_key = ?", itemKey); err != nil {
		return fmt.Errorf("failed to delete index state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk deletion: %w", err)
	}
	return nil
}

// ListCandidates returns chunk rows matching the filter, embeddings included.
// Filter pruning happens in SQL so scoring only ever touches candidates.
func (r *ChunkRepo) ListCandidates(ctx context.Context, filter CandidateFilter) ([]*ChunkRecord, error) {
	query := "SELECT id, item_key, chunk_index, text, embedding, page_number, section_id, char_start, char_end, item_type, doc_type, content_hash FROM chunks"
	var clauses []string
	var args []any

	if len(filter.ItemTypes) > 0 {
		clauses = append(clauses, "item_type IN ("+placeholders(len(filter.ItemTypes))+")")
		for _, v := range filter.ItemTypes {
			args = append(args, v)
		}
	}
	if len(filter.DocTypes) > 0 {
		clauses = append(clauses, "doc_type IN ("+placeholders(len(filter.DocTypes))+")")
		for _, v := range filter.DocTypes {
			args = append(args, v)
		}
	}
	if len(filter.ItemKeys) > 0 {
		clauses = append(clauses, "item_key IN ("+placeholders(len(filter.ItemKeys))+")")
		for _, v := range filter.ItemKeys {
			args = append(args, v)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk candidates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		var pageNumber sql.NullInt64
		var sectionID, itemType, docType, contentHash sql.NullString
		if err := rows.Scan(&c.ID, &c.ItemKey, &c.ChunkIndex, &c.Text, &c.Embedding,
			&pageNumber, &sectionID, &c.CharStart, &c.CharEnd, &itemType, &docType, &contentHash); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if pageNumber.Valid {
			p := int(pageNumber.Int64)
			c.PageNumber = &p
		}
		if sectionID.Valid {
			c.SectionID = &sectionID.String
		}
		c.ItemType = itemType.String
		if docType.Valid {
			c.DocType = &docType.String
		}
		c.ContentHash = contentHash.String
		out = append(out, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}

// GetIndexState returns the index state for an item, or ErrNotFound.
func (r *ChunkRepo) GetIndexState(ctx context.Context, itemKey string) (*IndexState, error) {
	var st IndexState
	var indexedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		"SELECT item_key, chunk_count, content_hash, embedding_model, indexed_at FROM index_state WHERE item_key = ?",
		itemKey,
	).Scan(&st.ItemKey, &st.ChunkCount, &st.ContentHash, &st.EmbeddingModel, &indexedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query index state: %w", err)
	}

	if indexedAt.Valid {
		st.IndexedAt = indexedAt.Time
	}
	return &st, nil
}

// CountForItem returns the number of stored chunks for an item.
func (r *ChunkRepo) CountForItem(ctx context.Context, itemKey string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE item_key = ?", itemKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Stats returns aggregate vectorization statistics.
func (r *ChunkRepo) Stats(ctx context.Context) (*VectorStats, error) {
	stats := &VectorStats{ModelCounts: make(map[string]int)}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_state").Scan(&stats.IndexedItems); err != nil {
		return nil, fmt.Errorf("failed to count indexed items: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.TotalChunks); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT embedding_model, COUNT(*) FROM index_state GROUP BY embedding_model")
	if err != nil {
		return nil, fmt.Errorf("failed to query model counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return nil, fmt.Errorf("failed to scan model count: %w", err)
		}
		stats.ModelCounts[model] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return stats, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
