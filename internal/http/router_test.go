package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"refdex/internal/chunker"
	"refdex/internal/embedding"
	"refdex/internal/handlers"
	"refdex/internal/storage"
	"refdex/internal/sync"
	"refdex/internal/sync/mocks"
	"refdex/internal/vectorindex"
)

// stubEmbedder embeds every text as the unit vector (1, 0).
type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (s stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, _ := s.EmbedDocuments(ctx, []string{text})
	return vecs[0], nil
}

func (stubEmbedder) Dimension() int { return 2 }

type routerEnv struct {
	handler http.Handler
	db      *sql.DB
	source  *mocks.MockSourceClient
	chunks  storage.ChunkStore
	items   storage.ItemStore
	notes   storage.NoteStore
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	blobs, err := storage.NewBlobStore(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	ctrl := gomock.NewController(t)
	source := mocks.NewMockSourceClient(ctrl)
	extractor := mocks.NewMockExtractor(ctrl)

	items := storage.NewItemRepo(db)
	chunks := storage.NewChunkRepo(db)
	content := storage.NewContentRepo(db)
	notes := storage.NewNoteRepo(db)

	engine := sync.NewEngine(
		source, extractor,
		storage.NewCollectionRepo(db), items,
		storage.NewAttachmentRepo(db), notes,
		content, storage.NewSyncStateRepo(db),
		blobs, storage.NewSessionCache(0),
	)
	index := vectorindex.New(chunks, items, content, chunker.New(0, 0, 0), stubEmbedder{}, "all-MiniLM-L6-v2")

	handler := NewRouter(&Deps{
		DB:          db,
		SyncEngine:  engine,
		Index:       index,
		Embedder:    stubEmbedder{},
		Stats:       storage.NewStatsRepo(db),
		Chunks:      chunks,
		Notes:       notes,
		Blobs:       blobs,
		DefaultTopK: 10,
	})
	return &routerEnv{handler: handler, db: db, source: source, chunks: chunks, items: items, notes: notes}
}

func (env *routerEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	env := newRouterEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestSyncEndpoint(t *testing.T) {
	env := newRouterEnv(t)

	root := &sync.RemoteCollection{Key: "COL1", Name: "Research", Version: 1}
	env.source.EXPECT().Collection(gomock.Any(), "COL1").Return(root, nil)
	env.source.EXPECT().Subcollections(gomock.Any(), "COL1").Return(nil, nil)
	env.source.EXPECT().Items(gomock.Any(), "COL1").Return(nil, nil)

	w := env.post(t, "/api/sync", map[string]any{"collection_key": "COL1", "full": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Mode  string      `json:"mode"`
		Stats *sync.Stats `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Mode != "full" || resp.Stats.Collections != 1 {
		t.Errorf("response = %+v", resp)
	}

	// Once synced, the status endpoint reports the collection.
	req := httptest.NewRequest(http.MethodGet, "/api/collections/COL1/status", nil)
	sw := httptest.NewRecorder()
	env.handler.ServeHTTP(sw, req)
	if sw.Code != http.StatusOK {
		t.Errorf("status endpoint = %d, body %s", sw.Code, sw.Body.String())
	}
}

func TestSyncEndpointValidation(t *testing.T) {
	env := newRouterEnv(t)

	w := env.post(t, "/api/sync", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing collection_key: status = %d, want 400", w.Code)
	}
}

func TestStatusEndpointNotSynced(t *testing.T) {
	env := newRouterEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/collections/UNKNOWN/status", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	item := &storage.Item{Key: "A", ItemType: "journalArticle", Title: "A", Version: 1, LastSynced: time.Now().UTC()}
	if err := env.items.Upsert(ctx, item); err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	records := []*storage.ChunkRecord{
		{ItemKey: "A", ChunkIndex: 0, Text: "aligned", Embedding: embedding.Encode([]float32{1, 0}), ItemType: "journalArticle", ContentHash: "h"},
		{ItemKey: "A", ChunkIndex: 1, Text: "orthogonal", Embedding: embedding.Encode([]float32{0, 1}), ItemType: "journalArticle", ContentHash: "h"},
	}
	state := &storage.IndexState{ItemKey: "A", ChunkCount: 2, ContentHash: "h", EmbeddingModel: "all-MiniLM-L6-v2", IndexedAt: time.Now().UTC()}
	if err := env.chunks.ReplaceChunks(ctx, "A", records, state); err != nil {
		t.Fatalf("failed to seed chunks: %v", err)
	}

	w := env.post(t, "/api/search", map[string]any{"query": "anything", "top_k": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Hits []vectorindex.SearchHit `json:"hits"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].Text != "aligned" {
		t.Errorf("hits = %+v, want the aligned chunk first", resp.Hits)
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	env := newRouterEnv(t)

	w := env.post(t, "/api/search", map[string]any{"top_k": 3})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query: status = %d, want 400", w.Code)
	}
}

func TestDiscoverEndpoint(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	item := &storage.Item{Key: "A", ItemType: "journalArticle", Title: "Only Source", Version: 1, LastSynced: time.Now().UTC()}
	if err := env.items.Upsert(ctx, item); err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	records := []*storage.ChunkRecord{
		{ItemKey: "A", ChunkIndex: 0, Text: "relevant text", Embedding: embedding.Encode([]float32{1, 0}), ItemType: "journalArticle", ContentHash: "h"},
	}
	state := &storage.IndexState{ItemKey: "A", ChunkCount: 1, ContentHash: "h", EmbeddingModel: "all-MiniLM-L6-v2", IndexedAt: time.Now().UTC()}
	if err := env.chunks.ReplaceChunks(ctx, "A", records, state); err != nil {
		t.Fatalf("failed to seed chunks: %v", err)
	}

	w := env.post(t, "/api/discover", map[string]any{"query": "anything", "top_n": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Sources []vectorindex.Source `json:"sources"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Only Source" {
		t.Errorf("sources = %+v", resp.Sources)
	}
}

func TestNotesEndpoints(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	colRepo := storage.NewCollectionRepo(env.db)
	if err := colRepo.Upsert(ctx, &storage.Collection{Key: "COL1", Name: "Research", LastSynced: time.Now().UTC()}); err != nil {
		t.Fatalf("failed to seed collection: %v", err)
	}
	item := &storage.Item{Key: "ITEM1", ItemType: "journalArticle", Title: "Paper", Version: 1, LastSynced: time.Now().UTC()}
	if err := env.items.Upsert(ctx, item); err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}

	col, parent := "COL1", "ITEM1"
	standalone := &storage.Note{Key: "N1", CollectionKey: &col, Title: "Reading list", Content: "queue", Version: 1, LastSynced: time.Now().UTC()}
	child := &storage.Note{Key: "N2", ParentItemKey: &parent, Title: "Summary", Content: "notes", Version: 1, LastSynced: time.Now().UTC()}
	for _, n := range []*storage.Note{standalone, child} {
		if err := env.notes.Upsert(ctx, n); err != nil {
			t.Fatalf("failed to seed note: %v", err)
		}
	}

	get := func(path string) (int, []handlers.NoteResponse) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		var resp handlers.NotesListResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON from %s: %v", path, err)
		}
		return w.Code, resp.Notes
	}

	code, notes := get("/api/collections/COL1/notes")
	if code != http.StatusOK || len(notes) != 1 || notes[0].Key != "N1" {
		t.Errorf("collection notes = (%d, %+v), want only N1", code, notes)
	}

	code, notes = get("/api/collections/COL1/notes?title_prefix=Nope")
	if code != http.StatusOK || len(notes) != 0 {
		t.Errorf("prefix-filtered notes = (%d, %+v), want none", code, notes)
	}

	code, notes = get("/api/items/ITEM1/notes")
	if code != http.StatusOK || len(notes) != 1 || notes[0].Key != "N2" {
		t.Errorf("item notes = (%d, %+v), want only N2", code, notes)
	}
}
