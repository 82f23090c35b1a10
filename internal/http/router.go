package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"refdex/internal/handlers"
	"refdex/internal/storage"
	"refdex/internal/sync"
	"refdex/internal/vectorindex"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB          *sql.DB
	SyncEngine  *sync.Engine
	Index       *vectorindex.Index
	Embedder    vectorindex.Embedder
	Stats       *storage.StatsRepo
	Chunks      storage.ChunkStore
	Notes       storage.NoteStore
	Blobs       *storage.BlobStore
	DefaultTopK int
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(CORS)

	r.Method(http.MethodGet, "/healthz", handlers.NewHealthHandler(deps.DB))

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/sync", handlers.NewSyncHandler(deps.SyncEngine))
		r.Method(http.MethodPost, "/index", handlers.NewIndexHandler(deps.Index))
		r.Method(http.MethodPost, "/search", handlers.NewSearchHandler(deps.Index, deps.Embedder, deps.DefaultTopK))
		r.Method(http.MethodPost, "/discover", handlers.NewDiscoverHandler(deps.Index, deps.Embedder, deps.DefaultTopK))
		r.Method(http.MethodGet, "/collections/{key}/status", handlers.NewStatusHandler(deps.Stats, deps.Chunks, deps.Blobs))
		r.Method(http.MethodGet, "/collections/{key}/notes", handlers.NewCollectionNotesHandler(deps.Notes))
		r.Method(http.MethodGet, "/items/{key}/notes", handlers.NewItemNotesHandler(deps.Notes))
	})

	return r
}
