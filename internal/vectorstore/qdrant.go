// Package vectorstore provides the Qdrant-backed vector index, the
// larger-scale alternative to the local brute-force search.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"refdex/internal/contextutil"
	"refdex/internal/storage"
	"refdex/internal/vectorindex"
)

// QdrantStore mirrors chunk rows into a Qdrant collection and answers
// similarity queries against it. It satisfies vectorindex.Searcher, so hosts
// can select it in place of the local index without touching callers.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a Qdrant store client for one named collection.
// urlStr is the HTTP endpoint ("http://host:port"); the gRPC port is derived
// as HTTP port + 1.
func NewQdrantStore(urlStr, collection string) (*QdrantStore, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{client: client, collection: collection}, nil
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// UpsertChunks mirrors an item's chunk records into Qdrant. Point IDs derive
// deterministically from item key and chunk index, so a re-index overwrites
// in place.
func (s *QdrantStore) UpsertChunks(ctx context.Context, records []*storage.ChunkRecord, vectors [][]float32) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(records) != len(vectors) {
		return fmt.Errorf("%d records but %d vectors", len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for i, rec := range records {
		meta := map[string]any{
			"item_key":    rec.ItemKey,
			"chunk_index": int64(rec.ChunkIndex),
			"text":        rec.Text,
			"item_type":   rec.ItemType,
		}
		if rec.DocType != nil {
			meta["doc_type"] = *rec.DocType
		}
		if rec.PageNumber != nil {
			meta["page_number"] = int64(*rec.PageNumber)
		}
		if rec.SectionID != nil {
			meta["section_id"] = *rec.SectionID
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(rec.ItemKey, rec.ChunkIndex)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(meta),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", s.collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.InfoContext(ctx, "upserted points", "collection", s.collection, "count", len(points))
	return nil
}

// DeleteItem removes every point belonging to an item.
func (s *QdrantStore) DeleteItem(ctx context.Context, itemKey string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("item_key", itemKey)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for %s: %w", itemKey, err)
	}
	return nil
}

// Search queries Qdrant and maps scored points back to search hits. Filters
// translate to payload match conditions evaluated server-side.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int, filter storage.CandidateFilter) ([]vectorindex.SearchHit, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		topK = vectorindex.DefaultTopK
	}

	var conditions []*qdrant.Condition
	if len(filter.ItemTypes) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("item_type", filter.ItemTypes...))
	}
	if len(filter.DocTypes) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("doc_type", filter.DocTypes...))
	}
	if len(filter.ItemKeys) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("item_key", filter.ItemKeys...))
	}

	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(conditions) > 0 {
		req.Filter = &qdrant.Filter{Must: conditions}
	}

	scored, err := s.client.Query(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", s.collection, "top_k", topK, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	hits := make([]vectorindex.SearchHit, 0, len(scored))
	for _, point := range scored {
		hit := vectorindex.SearchHit{Similarity: float64(point.Score)}
		payload := point.Payload
		if payload == nil {
			hits = append(hits, hit)
			continue
		}

		hit.ItemKey = payload["item_key"].GetStringValue()
		hit.ChunkIndex = int(payload["chunk_index"].GetIntegerValue())
		hit.Text = payload["text"].GetStringValue()
		hit.ItemType = payload["item_type"].GetStringValue()
		if v, ok := payload["doc_type"]; ok {
			docType := v.GetStringValue()
			hit.DocType = &docType
		}
		if v, ok := payload["page_number"]; ok {
			page := int(v.GetIntegerValue())
			hit.PageNumber = &page
		}
		if v, ok := payload["section_id"]; ok {
			sectionID := v.GetStringValue()
			hit.SectionID = &sectionID
		}
		hits = append(hits, hit)
	}

	logger.DebugContext(ctx, "search completed", "collection", s.collection, "top_k", topK, "results", len(hits))
	return hits, nil
}

// pointID derives a stable UUID for a chunk from its item key and index.
func pointID(itemKey string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(itemKey+":"+strconv.Itoa(chunkIndex))).String()
}
