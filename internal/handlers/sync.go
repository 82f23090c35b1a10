package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"refdex/internal/contextutil"
	"refdex/internal/sync"
)

// SyncHandler handles HTTP requests for syncing a collection from the source.
type SyncHandler struct {
	engine *sync.Engine
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine *sync.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// SyncRequest is the request body for the sync endpoint.
type SyncRequest struct {
	CollectionKey string `json:"collection_key"`
	Full          bool   `json:"full"`
}

// SyncResponse is the response from the sync endpoint. Stats are included
// even on a connection failure: they cover the part of the pass that ran.
type SyncResponse struct {
	Mode  string      `json:"mode"`
	Stats *sync.Stats `json:"stats"`
	Error string      `json:"error,omitempty"`
}

// ServeHTTP runs a sync pass and reports its stats.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CollectionKey == "" {
		writeError(w, http.StatusBadRequest, "collection_key is required")
		return
	}

	mode := sync.ModeIncremental
	if req.Full {
		mode = sync.ModeFull
	}

	stats, err := h.engine.SyncCollection(ctx, req.CollectionKey, mode)
	if err != nil {
		logger.ErrorContext(ctx, "sync failed", "collection_key", req.CollectionKey, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, sync.ErrConnection) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, SyncResponse{Mode: string(mode), Stats: stats, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{Mode: string(mode), Stats: stats})
}
