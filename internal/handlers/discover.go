package handlers

import (
	"encoding/json"
	"net/http"

	"refdex/internal/contextutil"
	"refdex/internal/storage"
	"refdex/internal/vectorindex"
)

// DiscoverHandler handles HTTP requests for source-level discovery: chunk
// hits aggregated and ranked per source item.
type DiscoverHandler struct {
	index       *vectorindex.Index
	embedder    vectorindex.Embedder
	defaultTopN int
}

// NewDiscoverHandler creates a new DiscoverHandler.
func NewDiscoverHandler(index *vectorindex.Index, embedder vectorindex.Embedder, defaultTopN int) *DiscoverHandler {
	return &DiscoverHandler{index: index, embedder: embedder, defaultTopN: defaultTopN}
}

// DiscoverRequest is the request body for the discover endpoint.
type DiscoverRequest struct {
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	ItemTypes []string `json:"item_types,omitempty"`
	DocTypes  []string `json:"doc_types,omitempty"`
}

// DiscoverResponse is the response from the discover endpoint.
type DiscoverResponse struct {
	Query   string               `json:"query"`
	Sources []vectorindex.Source `json:"sources"`
}

// ServeHTTP embeds the query text and returns ranked source items.
func (h *DiscoverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topN := req.TopN
	if topN <= 0 {
		topN = h.defaultTopN
	}

	vector, err := h.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed query", "error", err)
		writeError(w, http.StatusBadGateway, "embedding service unavailable")
		return
	}

	sources, err := h.index.Discover(ctx, vector, topN, storage.CandidateFilter{
		ItemTypes: req.ItemTypes,
		DocTypes:  req.DocTypes,
	})
	if err != nil {
		logger.ErrorContext(ctx, "discovery failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DiscoverResponse{Query: req.Query, Sources: sources})
}
