package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sessions.
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)
		r.Put("/page", h.SetPage)
		r.Put("/draft", h.UpdateDraft)
		r.Post("/save", h.Save)
		r.Post("/new", h.NewNote)
		r.Post("/switch", h.Switch)
		r.Post("/navigate", h.Navigate)
		r.Get("/notes", h.ListNotes)
		r.Get("/notes/{noteID}", h.LoadNote)
		r.Delete("/notes/{noteID}", h.DeleteNote)
		r.Put("/folder", h.SelectFolder)
		r.Delete("/folders/{key}", h.DeleteFolder)
		r.Get("/export", h.Export)
	})

	// Folders.
	r.Get("/folders", h.ListFolders)
	r.Put("/folders/{key}", h.RenameFolder)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
