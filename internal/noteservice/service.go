// Package noteservice coordinates note files, the in-memory workspace and
// the search index for the HTTP and MCP front ends.
package noteservice

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/patto/internal/apperr"
	"github.com/starford/patto/internal/checksum"
	"github.com/starford/patto/internal/index"
	"github.com/starford/patto/internal/storage"
	"github.com/starford/patto/internal/syntax"
	"github.com/starford/patto/internal/workspace"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string               `json:"path"`
	URI         string               `json:"uri"`
	Name        string               `json:"name"`
	Content     string               `json:"content"`
	Checksum    string               `json:"checksum"`
	Size        int64                `json:"size"`
	Version     int64                `json:"version"`
	Links       []workspace.Link     `json:"links"`
	Anchors     []workspace.Anchor   `json:"anchors"`
	Tasks       []TaskItem           `json:"tasks"`
	Diagnostics []syntax.Diagnostic  `json:"diagnostics"`
	Backlinks   []workspace.Backlink `json:"backlinks"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	Links     int       `json:"links"`
	Tasks     int       `json:"tasks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskItem is a task as presented to clients.
type TaskItem struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Row    int    `json:"row"`
	Text   string `json:"text"`
	Status string `json:"status"`
	Due    string `json:"due,omitempty"`
}

// Resolution is where a link points.
type Resolution struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Row         int    `json:"row"`
	AnchorFound bool   `json:"anchor_found"`
}

// SearchHit is a single full-text match.
type SearchHit struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// Service coordinates storage, workspace and index operations.
type Service struct {
	store storage.Provider
	repo  *workspace.Repository
	db    index.NoteIndex
}

// NewService creates a new note service.
func NewService(store storage.Provider, repo *workspace.Repository, db index.NoteIndex) *Service {
	return &Service{store: store, repo: repo, db: db}
}

func (s *Service) validatePath(path string) error {
	err := validation.Validate(path,
		validation.Required,
		validation.By(func(any) error {
			if !strings.HasSuffix(path, s.store.Ext()) {
				return fmt.Errorf("must end with %s", s.store.Ext())
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: path %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

// document returns the loaded document for path, reading it from disk
// if the workspace has not seen it yet.
func (s *Service) document(ctx context.Context, path string) (*workspace.Document, error) {
	if err := s.validatePath(path); err != nil {
		return nil, err
	}
	if doc, ok := s.repo.Get(s.repo.URIFor(path)); ok {
		return doc, nil
	}
	if _, err := s.repo.UpsertFile(ctx, path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	doc, ok := s.repo.Get(s.repo.URIFor(path))
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return doc, nil
}

// GetNote returns a note with its links, tasks and backlinks.
func (s *Service) GetNote(ctx context.Context, path string) (*NoteDetail, error) {
	doc, err := s.document(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, doc)
}

// CreateNote writes a new note and loads it into the workspace.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	if err := s.validatePath(path); err != nil {
		return nil, err
	}
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	return s.reload(ctx, path)
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	if err := s.validatePath(path); err != nil {
		return nil, err
	}
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	return s.reload(ctx, path)
}

// DeleteNote removes a note from disk, the workspace and the index.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	if err := s.validatePath(path); err != nil {
		return err
	}
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	uri := s.repo.URIFor(path)
	s.repo.Remove(uri)
	return s.db.DeleteNote(uri)
}

// MoveNote renames a note on disk and in the workspace.
func (s *Service) MoveNote(ctx context.Context, from, to string) (*NoteDetail, error) {
	if err := s.validatePath(from); err != nil {
		return nil, err
	}
	if err := s.validatePath(to); err != nil {
		return nil, err
	}
	if _, err := s.store.Read(to); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Move(from, to); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	oldURI := s.repo.URIFor(from)
	s.repo.Remove(oldURI)
	if err := s.db.DeleteNote(oldURI); err != nil {
		return nil, err
	}
	return s.reload(ctx, to)
}

func (s *Service) reload(ctx context.Context, path string) (*NoteDetail, error) {
	if _, err := s.repo.UpsertFile(ctx, path); err != nil {
		return nil, err
	}
	doc, ok := s.repo.Get(s.repo.URIFor(path))
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if err := index.IndexDocument(s.db, doc); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, doc)
}

// ListNotes returns a page of notes sorted by name or by update time.
// A negative limit returns every note.
func (s *Service) ListNotes(_ context.Context, limit, offset int, sort string) ([]NoteListItem, int, error) {
	var items []NoteListItem
	for doc := range s.repo.All() {
		items = append(items, NoteListItem{
			Path:      s.relPath(doc),
			Name:      doc.Name,
			Checksum:  doc.Checksum,
			Links:     len(doc.Links),
			Tasks:     len(doc.Tasks),
			UpdatedAt: doc.ModTime,
		})
	}
	switch sort {
	case "updated_at":
		slices.SortFunc(items, func(a, b NoteListItem) int {
			return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), cmp.Compare(a.Name, b.Name))
		})
	default:
		slices.SortFunc(items, func(a, b NoteListItem) int { return cmp.Compare(a.Name, b.Name) })
	}

	total := len(items)
	switch {
	case limit < 0:
		limit = total
	case limit == 0:
		limit = 50
	}
	offset = min(max(offset, 0), total)
	end := min(offset+limit, total)
	return nonNilSlice(items[offset:end]), total, nil
}

// Tree returns the parsed syntax tree of a note.
func (s *Service) Tree(ctx context.Context, path string) (*syntax.Tree, error) {
	doc, err := s.document(ctx, path)
	if err != nil {
		return nil, err
	}
	return doc.Tree, nil
}

// Backlinks returns the notes linking to path. The note need not exist.
func (s *Service) Backlinks(_ context.Context, path string) ([]workspace.Backlink, error) {
	if err := s.validatePath(path); err != nil {
		return nil, err
	}
	bl, err := s.repo.Backlinks(s.repo.URIFor(path))
	return nonNilSlice(bl), err
}

// TwoHop returns the two-hop neighbourhood of path.
func (s *Service) TwoHop(ctx context.Context, path string) ([]workspace.Bridge, error) {
	doc, err := s.document(ctx, path)
	if err != nil {
		return nil, err
	}
	hops, err := s.repo.TwoHop(doc.URI)
	return nonNilSlice(hops), err
}

// Tasks lists workspace tasks sorted by due date, optionally filtered by
// status.
func (s *Service) Tasks(_ context.Context, status string) ([]TaskItem, error) {
	if status != "" {
		if err := validation.Validate(status, validation.In("todo", "doing", "done")); err != nil {
			return nil, fmt.Errorf("%w: status %v", apperr.ErrInvalidInput, err)
		}
	}
	items := s.repo.AggregateTasks()
	workspace.SortTasks(items)
	out := []TaskItem{}
	for _, it := range items {
		if status != "" && it.Status.String() != status {
			continue
		}
		out = append(out, TaskItem{
			Path:   s.relPathOf(it.URI),
			Name:   it.Name,
			Row:    it.Row,
			Text:   it.Text,
			Status: it.Status.String(),
			Due:    it.Due.String(),
		})
	}
	return out, nil
}

// Resolve finds the note and row a link in from points to.
func (s *Service) Resolve(ctx context.Context, from, target, anchor string) (*Resolution, error) {
	doc, err := s.document(ctx, from)
	if err != nil {
		return nil, err
	}
	lt, ok := s.repo.ResolveLink(doc.URI, target, anchor)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &Resolution{
		Path:        s.relPathOf(lt.URI),
		Name:        lt.Name,
		Row:         lt.Row,
		AnchorFound: lt.AnchorFound,
	}, nil
}

// CompleteNotes fuzzy-matches note names.
func (s *Service) CompleteNotes(_ context.Context, prefix string) []string {
	return nonNilSlice(s.repo.NoteCompletions(prefix))
}

// CompleteAnchors fuzzy-matches the anchors of path.
func (s *Service) CompleteAnchors(ctx context.Context, path, prefix string) ([]string, error) {
	doc, err := s.document(ctx, path)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(s.repo.AnchorCompletions(doc.URI, prefix)), nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]SearchHit, error) {
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(res))
	for _, r := range res {
		hits = append(hits, SearchHit{Path: s.relPathOf(r.URI), Name: r.Name, Snippet: r.Snippet})
	}
	return hits, nil
}

// RelPath maps a workspace URI to its path relative to the root.
func (s *Service) RelPath(uri string) string { return s.relPathOf(uri) }

func (s *Service) buildNoteDetail(path string, doc *workspace.Document) (*NoteDetail, error) {
	bl, err := s.repo.Backlinks(doc.URI)
	if err != nil {
		return nil, err
	}
	tasks := make([]TaskItem, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		tasks = append(tasks, TaskItem{
			Path:   path,
			Name:   doc.Name,
			Row:    t.Row,
			Text:   t.Text,
			Status: t.Status.String(),
			Due:    t.Due.String(),
		})
	}
	var size int64
	if meta, err := s.store.Stat(path); err == nil {
		size = meta.Size
	}
	return &NoteDetail{
		Path:        path,
		Size:        size,
		URI:         doc.URI,
		Name:        doc.Name,
		Content:     doc.Text,
		Checksum:    doc.Checksum,
		Version:     doc.Version,
		Links:       nonNilSlice(doc.Links),
		Anchors:     nonNilSlice(doc.Anchors),
		Tasks:       tasks,
		Diagnostics: nonNilSlice(doc.Diagnostics),
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   doc.ModTime,
	}, nil
}

func (s *Service) relPath(doc *workspace.Document) string {
	return s.relPathOf(doc.URI)
}

func (s *Service) relPathOf(uri string) string {
	p, err := workspace.PathFromURI(uri)
	if err != nil {
		return uri
	}
	root := s.store.Root() + string(os.PathSeparator)
	return strings.ReplaceAll(strings.TrimPrefix(p, root), string(os.PathSeparator), "/")
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
