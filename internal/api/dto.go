package api

import (
	"github.com/starford/patto/internal/noteservice"
	"github.com/starford/patto/internal/workspace"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"projects/plan.pn" validate:"required"`
	Content string `json:"content" example:"Plan #top\n\t[daily/2025-01-01]" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"Plan #top" validate:"required"`
}

// MoveNoteRequest is the request body for renaming a note.
type MoveNoteRequest struct {
	From string `json:"from" example:"plan.pn" validate:"required"`
	To   string `json:"to" example:"projects/plan.pn" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// BacklinksResponse lists the notes linking to a note.
type BacklinksResponse struct {
	Backlinks []workspace.Backlink `json:"backlinks" validate:"required"`
}

// TwoHopResponse lists notes sharing a link target with a note.
type TwoHopResponse struct {
	Bridges []workspace.Bridge `json:"bridges" validate:"required"`
}

// TasksResponse lists tasks across the workspace ordered by due date.
type TasksResponse struct {
	Tasks []noteservice.TaskItem `json:"tasks" validate:"required"`
}

// Resolution is where a link points.
type Resolution = noteservice.Resolution

// CompletionResponse lists completion candidates, best match first.
type CompletionResponse struct {
	Items []string `json:"items" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []noteservice.SearchHit `json:"results" validate:"required"`
}
