package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"refdex/internal/contextutil"
	"refdex/internal/storage"
)

// NoteResponse is one note in a listing response.
type NoteResponse struct {
	Key           string  `json:"key"`
	ParentItemKey *string `json:"parent_item_key,omitempty"`
	CollectionKey *string `json:"collection_key,omitempty"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Version       int64   `json:"version"`
	LastSynced    string  `json:"last_synced"`
}

// NotesListResponse is the response from the note listing endpoints.
type NotesListResponse struct {
	Notes []NoteResponse `json:"notes"`
}

func noteResponses(notes []*storage.Note) []NoteResponse {
	out := make([]NoteResponse, len(notes))
	for i, n := range notes {
		out[i] = NoteResponse{
			Key:           n.Key,
			ParentItemKey: n.ParentItemKey,
			CollectionKey: n.CollectionKey,
			Title:         n.Title,
			Content:       n.Content,
			Version:       n.Version,
			LastSynced:    n.LastSynced.UTC().Format(time.RFC3339),
		}
	}
	return out
}

// CollectionNotesHandler lists a collection's standalone notes.
type CollectionNotesHandler struct {
	notes storage.NoteStore
}

// NewCollectionNotesHandler creates a new CollectionNotesHandler.
func NewCollectionNotesHandler(notes storage.NoteStore) *CollectionNotesHandler {
	return &CollectionNotesHandler{notes: notes}
}

// ServeHTTP lists the standalone notes of a collection, optionally filtered
// by the title_prefix query parameter.
func (h *CollectionNotesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "collection key is required")
		return
	}

	notes, err := h.notes.ListStandalone(ctx, key, r.URL.Query().Get("title_prefix"))
	if err != nil {
		logger.ErrorContext(ctx, "failed to list collection notes", "collection_key", key, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NotesListResponse{Notes: noteResponses(notes)})
}

// ItemNotesHandler lists the child notes of an item.
type ItemNotesHandler struct {
	notes storage.NoteStore
}

// NewItemNotesHandler creates a new ItemNotesHandler.
func NewItemNotesHandler(notes storage.NoteStore) *ItemNotesHandler {
	return &ItemNotesHandler{notes: notes}
}

// ServeHTTP lists the notes attached to an item, optionally filtered by the
// title_prefix query parameter.
func (h *ItemNotesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "item key is required")
		return
	}

	notes, err := h.notes.ListByItem(ctx, key, r.URL.Query().Get("title_prefix"))
	if err != nil {
		logger.ErrorContext(ctx, "failed to list item notes", "item_key", key, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NotesListResponse{Notes: noteResponses(notes)})
}
