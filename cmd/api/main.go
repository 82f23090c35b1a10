package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"time"

	"refdex/internal/chunker"
	"refdex/internal/config"
	"refdex/internal/embedding"
	"refdex/internal/extract"
	"refdex/internal/http"
	"refdex/internal/source"
	"refdex/internal/storage"
	"refdex/internal/sync"
	"refdex/internal/vectorindex"
	"refdex/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	collectionRepo := storage.NewCollectionRepo(db)
	itemRepo := storage.NewItemRepo(db)
	attachmentRepo := storage.NewAttachmentRepo(db)
	noteRepo := storage.NewNoteRepo(db)
	contentRepo := storage.NewContentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	syncStateRepo := storage.NewSyncStateRepo(db)
	statsRepo := storage.NewStatsRepo(db)

	blobs, err := storage.NewBlobStore(cfg.FilesDir)
	if err != nil {
		log.Fatalf("Failed to initialize file store: %v", err)
	}
	sessionCache := storage.NewSessionCache(time.Duration(cfg.SessionCacheTTLSeconds) * time.Second)

	// Source API client and content extractor
	sourceClient := source.NewClient(cfg.SourceAPIURL, cfg.SourceAPIKey)
	extractor := extract.New()

	// Sync engine
	syncEngine := sync.NewEngine(
		sourceClient,
		extractor,
		collectionRepo,
		itemRepo,
		attachmentRepo,
		noteRepo,
		contentRepo,
		syncStateRepo,
		blobs,
		sessionCache,
	)
	slog.Info("Sync engine initialized", "source", cfg.SourceAPIURL)

	// Embedding model client
	model, err := embedding.NewModel(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}
	slog.Info("Embedding model configured", "model", cfg.EmbeddingModelName, "dimension", model.Dimension())

	// Vector index
	ch := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize)
	index := vectorindex.New(chunkRepo, itemRepo, contentRepo, ch, model, cfg.EmbeddingModelName).
		WithCache(sessionCache)

	if cfg.VectorBackend == "qdrant" {
		ctx := context.Background()
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		if err := store.EnsureCollection(ctx, model.Dimension()); err != nil {
			log.Fatalf("Failed to ensure Qdrant collection: %v", err)
		}
		index = index.WithBackend(store).WithMirror(store)
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", model.Dimension())
	}

	// Create router with dependencies
	deps := &http.Deps{
		DB:          db,
		SyncEngine:  syncEngine,
		Index:       index,
		Embedder:    model,
		Stats:       statsRepo,
		Chunks:      chunkRepo,
		Notes:       noteRepo,
		Blobs:       blobs,
		DefaultTopK: cfg.DefaultTopK,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr, "backend", cfg.VectorBackend)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
