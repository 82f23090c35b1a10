package vectorindex

import (
	"context"
	"errors"

	"refdex/internal/storage"
)

// ErrValidation marks an indexing request whose chunk and embedding lists do
// not line up. It fails that item's indexing only.
var ErrValidation = errors.New("chunk/embedding count mismatch")

// Embedder produces embeddings for documents and queries.
// *embedding.Model satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// SearchHit is one scored chunk from a similarity search.
type SearchHit struct {
	ItemKey    string  `json:"item_key"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	PageNumber *int    `json:"page_number,omitempty"`
	SectionID  *string `json:"section_id,omitempty"`
	ItemType   string  `json:"item_type"`
	DocType    *string `json:"doc_type,omitempty"`
}

// Source is one ranked source item from discovery, aggregating its chunk
// hits into a single score.
type Source struct {
	ItemKey        string   `json:"item_key"`
	Title          string   `json:"title"`
	ItemType       string   `json:"item_type"`
	Score          float64  `json:"score"`
	MaxSimilarity  float64  `json:"max_similarity"`
	MeanSimilarity float64  `json:"mean_similarity"`
	ChunkHits      int      `json:"chunk_hits"`
	Excerpts       []string `json:"excerpts"`
}

// IndexStats summarizes one collection indexing pass.
type IndexStats struct {
	Indexed     int `json:"indexed"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
	TotalChunks int `json:"total_chunks"`
}

// Searcher is the query-side contract of a backing vector index. Both the
// local brute-force index and the Qdrant store satisfy it, so the backing
// index can be swapped without touching callers.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int, filter storage.CandidateFilter) ([]SearchHit, error)
}

// ChunkMirror receives an item's chunk records after a successful local
// replace, keeping an external backend in step with the chunk store.
type ChunkMirror interface {
	UpsertChunks(ctx context.Context, records []*storage.ChunkRecord, vectors [][]float32) error
	DeleteItem(ctx context.Context, itemKey string) error
}
