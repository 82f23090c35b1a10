package handlers

import (
	"encoding/json"
	"net/http"

	"refdex/internal/contextutil"
	"refdex/internal/vectorindex"
)

// IndexHandler handles HTTP requests for indexing a collection's items.
type IndexHandler struct {
	index *vectorindex.Index
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(index *vectorindex.Index) *IndexHandler {
	return &IndexHandler{index: index}
}

// IndexRequest is the request body for the index endpoint.
type IndexRequest struct {
	CollectionKey string `json:"collection_key"`
	Force         bool   `json:"force"`
}

// ServeHTTP runs an indexing pass over a collection and reports its stats.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CollectionKey == "" {
		writeError(w, http.StatusBadRequest, "collection_key is required")
		return
	}

	stats, err := h.index.IndexCollection(ctx, req.CollectionKey, req.Force)
	if err != nil {
		logger.ErrorContext(ctx, "indexing failed", "collection_key", req.CollectionKey, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
