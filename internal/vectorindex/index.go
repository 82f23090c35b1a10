// Package vectorindex turns extracted item text into embedded chunk rows and
// answers similarity queries over them.
//
// Search is brute-force O(N) per query: candidates are filter-pruned in SQL,
// then every surviving embedding is decoded and scored in process. That is a
// deliberate tradeoff for corpora of low thousands of chunks; larger
// deployments swap the backing index behind the Searcher contract.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"refdex/internal/chunker"
	"refdex/internal/contextutil"
	"refdex/internal/embedding"
	"refdex/internal/extract"
	"refdex/internal/storage"
)

// DefaultTopK is used when a search caller does not specify a result count.
const DefaultTopK = 10

// discoverMultiplier inflates the chunk-level top_k during discovery so that
// source aggregation has enough hits per item to score with.
const discoverMultiplier = 5

// maxExcerpts and excerptLen bound the excerpt list carried per source.
const (
	maxExcerpts = 3
	excerptLen  = 200
)

// Index is the local vector index over the chunk store.
type Index struct {
	chunks    storage.ChunkStore
	items     storage.ItemStore
	content   storage.ContentStore
	chunker   *chunker.Chunker
	embedder  Embedder
	modelName string

	// backend, when set, answers queries instead of the local scan.
	backend Searcher
	// mirror, when set, receives every successful chunk replacement.
	mirror ChunkMirror
	// cache, when set, fronts repeated item and membership lookups.
	// The sync engine invalidates it as rows change.
	cache *storage.SessionCache
}

// New creates a vector index.
func New(
	chunks storage.ChunkStore,
	items storage.ItemStore,
	content storage.ContentStore,
	ch *chunker.Chunker,
	embedder Embedder,
	modelName string,
) *Index {
	return &Index{
		chunks:    chunks,
		items:     items,
		content:   content,
		chunker:   ch,
		embedder:  embedder,
		modelName: modelName,
	}
}

// IndexItem replaces an item's chunk rows with the given chunks and their
// parallel embeddings. A length mismatch fails with ErrValidation before
// anything is written; otherwise the replacement is atomic.
func (x *Index) IndexItem(ctx context.Context, item *storage.Item, chunks []chunker.Chunk, embeddings [][]float32, contentHash string, docType *string) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%d chunks but %d embeddings for %s: %w",
			len(chunks), len(embeddings), item.Key, ErrValidation)
	}

	records := make([]*storage.ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = &storage.ChunkRecord{
			ItemKey:     item.Key,
			ChunkIndex:  ch.Index,
			Text:        ch.Text,
			Embedding:   embedding.Encode(embeddings[i]),
			PageNumber:  ch.PageNumber,
			SectionID:   ch.SectionID,
			CharStart:   ch.CharStart,
			CharEnd:     ch.CharEnd,
			ItemType:    item.ItemType,
			DocType:     docType,
			ContentHash: contentHash,
		}
	}

	state := &storage.IndexState{
		ItemKey:        item.Key,
		ChunkCount:     len(records),
		ContentHash:    contentHash,
		EmbeddingModel: x.modelName,
		IndexedAt:      time.Now().UTC(),
	}
	if err := x.chunks.ReplaceChunks(ctx, item.Key, records, state); err != nil {
		return err
	}

	if x.mirror != nil {
		// Drop stale points first so a shrinking item leaves no leftovers.
		if err := x.mirror.DeleteItem(ctx, item.Key); err != nil {
			return fmt.Errorf("failed to clear mirrored chunks: %w", err)
		}
		if err := x.mirror.UpsertChunks(ctx, records, embeddings); err != nil {
			return fmt.Errorf("failed to mirror chunks: %w", err)
		}
	}
	return nil
}

// WithMirror registers an external chunk mirror fed on every IndexItem.
func (x *Index) WithMirror(m ChunkMirror) *Index {
	x.mirror = m
	return x
}

// WithCache fronts item and collection-membership lookups with the session
// cache shared with the sync engine.
func (x *Index) WithCache(c *storage.SessionCache) *Index {
	x.cache = c
	return x
}

// listMembers returns a collection's items, through the session cache when
// one is attached.
func (x *Index) listMembers(ctx context.Context, collectionKey string) ([]*storage.Item, error) {
	if x.cache != nil {
		if items, ok := x.cache.GetMembers(collectionKey); ok {
			return items, nil
		}
	}
	items, err := x.items.ListByCollection(ctx, collectionKey)
	if err != nil {
		return nil, err
	}
	if x.cache != nil {
		x.cache.PutMembers(collectionKey, items)
	}
	return items, nil
}

// getItem returns one item, through the session cache when one is attached.
func (x *Index) getItem(ctx context.Context, key string) (*storage.Item, error) {
	if x.cache != nil {
		if item, ok := x.cache.GetItem(key); ok {
			return item, nil
		}
	}
	item, err := x.items.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if x.cache != nil {
		x.cache.PutItem(item)
	}
	return item, nil
}

// IndexCollection walks a collection's cached items and indexes every item
// with extracted text. Items whose content hash and embedding model match
// their index state are skipped unless force is set. Per-item failures are
// counted, never fatal.
func (x *Index) IndexCollection(ctx context.Context, collectionKey string, force bool) (*IndexStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	stats := &IndexStats{}

	items, err := x.listMembers(ctx, collectionKey)
	if err != nil {
		return stats, fmt.Errorf("failed to list items: %w", err)
	}

	for _, item := range items {
		content, err := x.content.Get(ctx, item.Key)
		if errors.Is(err, storage.ErrNotFound) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("failed to load extracted content: %w", err)
		}

		if !force && x.upToDate(ctx, item.Key, content.ContentHash) {
			stats.Skipped++
			continue
		}

		chunks := x.chunkContent(content)
		if len(chunks) == 0 {
			logger.DebugContext(ctx, "no chunks for item", "item_key", item.Key)
			stats.Skipped++
			continue
		}

		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		embeddings, err := x.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			logger.WarnContext(ctx, "failed to embed item", "item_key", item.Key, "error", err)
			stats.Errors++
			continue
		}

		docType := content.ExtractionMethod
		if err := x.IndexItem(ctx, item, chunks, embeddings, content.ContentHash, &docType); err != nil {
			logger.WarnContext(ctx, "failed to index item", "item_key", item.Key, "error", err)
			stats.Errors++
			continue
		}
		stats.Indexed++
		stats.TotalChunks += len(chunks)
	}

	logger.InfoContext(ctx, "index pass complete",
		"collection_key", collectionKey,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"total_chunks", stats.TotalChunks,
	)
	return stats, nil
}

// upToDate reports whether the item's index state already covers the given
// content hash with the current embedding model.
func (x *Index) upToDate(ctx context.Context, itemKey, contentHash string) bool {
	state, err := x.chunks.GetIndexState(ctx, itemKey)
	if err != nil {
		return false
	}
	return state.ContentHash == contentHash && state.EmbeddingModel == x.modelName
}

// chunkContent picks the chunker mode from the extraction method.
func (x *Index) chunkContent(content *storage.ExtractedContent) []chunker.Chunk {
	switch content.ExtractionMethod {
	case extract.MethodMarkdown:
		return x.chunker.ChunkMarkdown(content.ExtractedText)
	case extract.MethodPaged:
		parts := strings.Split(content.ExtractedText, extract.PageSeparator)
		pages := make([]chunker.Page, len(parts))
		for i, p := range parts {
			pages[i] = chunker.Page{Number: i + 1, Text: p}
		}
		return x.chunker.ChunkPages(pages)
	}
	return x.chunker.ChunkText(content.ExtractedText)
}

// WithBackend routes queries to an external Searcher (e.g. the Qdrant store)
// instead of the local brute-force scan. Indexing still writes chunk rows
// locally; only the query path is delegated.
func (x *Index) WithBackend(s Searcher) *Index {
	x.backend = s
	return x
}

// Search returns the topK best chunks for the query vector, descending by
// similarity. Without an external backend it scores every filter-surviving
// chunk by cosine similarity in process; a stored embedding whose width
// differs from the query fails the whole call.
func (x *Index) Search(ctx context.Context, query []float32, topK int, filter storage.CandidateFilter) ([]SearchHit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if x.backend != nil {
		return x.backend.Search(ctx, query, topK, filter)
	}

	candidates, err := x.chunks.ListCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	hits := make([]SearchHit, 0, len(candidates))
	for _, c := range candidates {
		vec, err := embedding.Decode(c.Embedding, len(query))
		if err != nil {
			return nil, fmt.Errorf("stored embedding for %s chunk %d: %w", c.ItemKey, c.ChunkIndex, err)
		}
		hits = append(hits, SearchHit{
			ItemKey:    c.ItemKey,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Similarity: embedding.CosineSimilarity(query, vec),
			PageNumber: c.PageNumber,
			SectionID:  c.SectionID,
			ItemType:   c.ItemType,
			DocType:    c.DocType,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Discover aggregates chunk hits by source item and ranks sources by
// 0.7×max + 0.3×mean similarity across their hits, rewarding one strong hit
// while still crediting multi-chunk corroboration.
func (x *Index) Discover(ctx context.Context, query []float32, topN int, filter storage.CandidateFilter) ([]Source, error) {
	if topN <= 0 {
		topN = DefaultTopK
	}

	hits, err := x.Search(ctx, query, topN*discoverMultiplier, filter)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0)
	grouped := make(map[string][]SearchHit)
	for _, h := range hits {
		if _, ok := grouped[h.ItemKey]; !ok {
			order = append(order, h.ItemKey)
		}
		grouped[h.ItemKey] = append(grouped[h.ItemKey], h)
	}

	sources := make([]Source, 0, len(grouped))
	for _, key := range order {
		group := grouped[key]

		max, sum := group[0].Similarity, 0.0
		for _, h := range group {
			if h.Similarity > max {
				max = h.Similarity
			}
			sum += h.Similarity
		}
		mean := sum / float64(len(group))

		src := Source{
			ItemKey:        key,
			ItemType:       group[0].ItemType,
			Score:          0.7*max + 0.3*mean,
			MaxSimilarity:  max,
			MeanSimilarity: mean,
			ChunkHits:      len(group),
			Excerpts:       excerpts(group),
		}
		if item, err := x.getItem(ctx, key); err == nil {
			src.Title = item.Title
		}
		sources = append(sources, src)
	}

	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Score > sources[j].Score })
	if len(sources) > topN {
		sources = sources[:topN]
	}
	return sources, nil
}

// excerpts returns the best few hit texts of a group, truncated for display.
// Hits arrive already sorted by similarity.
func excerpts(group []SearchHit) []string {
	out := make([]string, 0, maxExcerpts)
	for _, h := range group {
		if len(out) == maxExcerpts {
			break
		}
		text := h.Text
		if len(text) > excerptLen {
			text = text[:excerptLen] + "..."
		}
		out = append(out, text)
	}
	return out
}
