package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"refdex/internal/contextutil"
	"refdex/internal/embedding"
	"refdex/internal/storage"
	"refdex/internal/vectorindex"
)

// SearchHandler handles HTTP requests for chunk-level similarity search.
type SearchHandler struct {
	index       *vectorindex.Index
	embedder    vectorindex.Embedder
	defaultTopK int
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(index *vectorindex.Index, embedder vectorindex.Embedder, defaultTopK int) *SearchHandler {
	return &SearchHandler{index: index, embedder: embedder, defaultTopK: defaultTopK}
}

// SearchRequest is the request body for the search endpoint.
type SearchRequest struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k"`
	ItemTypes []string `json:"item_types,omitempty"`
	DocTypes  []string `json:"doc_types,omitempty"`
	ItemKeys  []string `json:"item_keys,omitempty"`
}

// SearchResponse is the response from the search endpoint.
type SearchResponse struct {
	Query string                  `json:"query"`
	Hits  []vectorindex.SearchHit `json:"hits"`
}

// ServeHTTP embeds the query text and returns the best-matching chunks.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = h.defaultTopK
	}

	vector, err := h.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed query", "error", err)
		writeError(w, http.StatusBadGateway, "embedding service unavailable")
		return
	}

	hits, err := h.index.Search(ctx, vector, topK, storage.CandidateFilter{
		ItemTypes: req.ItemTypes,
		DocTypes:  req.DocTypes,
		ItemKeys:  req.ItemKeys,
	})
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		if errors.Is(err, embedding.ErrDimensionMismatch) {
			writeError(w, http.StatusConflict, "stored embeddings do not match the query model; re-index with the current model")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Hits: hits})
}
