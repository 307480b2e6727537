package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/patto/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the wildcard part of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. daily%2F2025-01-01.pn).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// requirePath writes a 400 and returns false when the URL carries no path.
func requirePath(w http.ResponseWriter, path string) bool {
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return false
	}
	return true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			sort	query		string	false	"Sort field"	Enums(name, updated_at)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("sort"))
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if !requirePath(w, path) {
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, "get note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "create note", err, slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/*.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Note path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateNoteRequest	true	"Updated content"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if !requirePath(w, path) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	var req UpdateNoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		writeError(w, "update note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if !requirePath(w, path) {
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		writeError(w, "delete note", err, slog.String("path", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNote handles POST /api/notes/move.
//
//	@Summary		Rename a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveNoteRequest	true	"Source and destination"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/move [post]
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	var req MoveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.svc.MoveNote(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "move note", err, slog.String("from", req.From), slog.String("to", req.To))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Tree handles GET /api/tree/*.
//
//	@Summary		Get the parsed syntax tree of a note
//	@Tags			structure
//	@Produce		json
//	@Param			path	path	string	true	"Note path"
//	@Success		200
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/{path} [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if !requirePath(w, path) {
		return
	}
	tree, err := h.svc.Tree(r.Context(), path)
	if err != nil {
		writeError(w, "tree", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, tree.Root)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List notes linking to a note
//	@Tags			structure
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if !requirePath(w, path) {
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeError(w, "backlinks", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Backlinks: bl})
}

// TwoHop handles GET /api/twohop/*.
//
//	@Summary		List notes sharing link targets with a note
//	@Tags			structure
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	TwoHopResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/twohop/{path} [get]
func (h *Handler) TwoHop(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if !requirePath(w, path) {
		return
	}
	bridges, err := h.svc.TwoHop(r.Context(), path)
	if err != nil {
		writeError(w, "two hop", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, TwoHopResponse{Bridges: bridges})
}

// Tasks handles GET /api/tasks.
//
//	@Summary		List tasks across the workspace ordered by due date
//	@Tags			structure
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status"	Enums(todo, doing, done)
//	@Success		200		{object}	TasksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.Tasks(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, "tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: tasks})
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve a link written in a note
//	@Tags			structure
//	@Produce		json
//	@Param			from	query		string	true	"Path of the linking note"
//	@Param			target	query		string	false	"Link target; empty links to the same note"
//	@Param			anchor	query		string	false	"Anchor name"
//	@Success		200		{object}	Resolution
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := q.Get("from")
	if !requirePath(w, from) {
		return
	}
	res, err := h.svc.Resolve(r.Context(), from, q.Get("target"), q.Get("anchor"))
	if err != nil {
		writeError(w, "resolve", err, slog.String("from", from))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CompleteNotes handles GET /api/complete/notes.
//
//	@Summary		Fuzzy-complete note names
//	@Tags			completion
//	@Produce		json
//	@Param			q	query		string	false	"Typed prefix"
//	@Success		200	{object}	CompletionResponse
//	@Security		BearerAuth
//	@Router			/complete/notes [get]
func (h *Handler) CompleteNotes(w http.ResponseWriter, r *http.Request) {
	items := h.svc.CompleteNotes(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, CompletionResponse{Items: items})
}

// CompleteAnchors handles GET /api/complete/anchors/*.
//
//	@Summary		Fuzzy-complete anchors of a note
//	@Tags			completion
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Param			q		query		string	false	"Typed prefix"
//	@Success		200		{object}	CompletionResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/complete/anchors/{path} [get]
func (h *Handler) CompleteAnchors(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if !requirePath(w, path) {
		return
	}
	items, err := h.svc.CompleteAnchors(r.Context(), path, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "complete anchors", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, CompletionResponse{Items: items})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
