package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"refdex/internal/contextutil"
	"refdex/internal/storage"
)

// StatusHandler reports the cached and indexed state of one collection.
type StatusHandler struct {
	stats  *storage.StatsRepo
	chunks storage.ChunkStore
	blobs  *storage.BlobStore
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(stats *storage.StatsRepo, chunks storage.ChunkStore, blobs *storage.BlobStore) *StatusHandler {
	return &StatusHandler{stats: stats, chunks: chunks, blobs: blobs}
}

// StatusResponse is the response from the collection status endpoint.
type StatusResponse struct {
	*storage.CacheInfo
	StorageBytes int64                `json:"storage_bytes"`
	Vector       *storage.VectorStats `json:"vector"`
}

// ServeHTTP returns cache info, blob storage size, and vector stats.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "collection key is required")
		return
	}

	info, err := h.stats.CacheInfo(ctx, key)
	if errors.Is(err, storage.ErrNotInitialized) {
		writeError(w, http.StatusNotFound, "collection has never been synced; run a sync first")
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to load cache info", "collection_key", key, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	vector, err := h.chunks.Stats(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load vector stats", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	size, err := h.blobs.Size()
	if err != nil {
		logger.WarnContext(ctx, "failed to size blob store", "error", err)
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		CacheInfo:    info,
		StorageBytes: size,
		Vector:       vector,
	})
}
