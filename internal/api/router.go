package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/patto/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events and preview, if non-nil, are mounted at GET /events and GET /ws
// inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, events, preview http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	if authEnabled {
		r.Use(RequireBearer(token))
	}

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/move", h.MoveNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Structure.
	r.Get("/tree/*", h.Tree)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/twohop/*", h.TwoHop)
	r.Get("/tasks", h.Tasks)
	r.Get("/resolve", h.Resolve)

	// Completion.
	r.Get("/complete/notes", h.CompleteNotes)
	r.Get("/complete/anchors/*", h.CompleteAnchors)

	// Search.
	r.Get("/search", h.Search)

	// Live updates.
	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}
	if preview != nil {
		r.Get("/ws", preview.ServeHTTP)
	}

	return r
}
