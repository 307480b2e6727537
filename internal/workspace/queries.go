package workspace

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/starford/patto/internal/syntax"
)

// BacklinkLocation is one link pointing at the queried note.
type BacklinkLocation struct {
	Row     int         `json:"row"`
	Span    syntax.Span `json:"-"`
	Anchor  string      `json:"anchor,omitempty"`
	Context string      `json:"context"`
}

// Backlink groups the locations of one referring note.
type Backlink struct {
	SourceURI  string             `json:"source_uri"`
	SourceName string             `json:"source_name"`
	Locations  []BacklinkLocation `json:"locations"`
}

// Backlinks returns every other note linking to uri, sorted by note name.
// Locations keep discovery order, which is row order. The note itself
// need not exist yet.
func (r *Repository) Backlinks(uri string) ([]Backlink, error) {
	name, err := r.nameOf(uri)
	if err != nil {
		return nil, fmt.Errorf("workspace: backlinks: %w", err)
	}
	var out []Backlink
	for _, src := range r.graph.sources(name) {
		if src == uri {
			continue
		}
		sd, ok := r.Get(src)
		if !ok {
			continue
		}
		var locs []BacklinkLocation
		for _, l := range sd.Links {
			if l.Target != name {
				continue
			}
			locs = append(locs, BacklinkLocation{
				Row:     l.Row,
				Span:    l.Span,
				Anchor:  l.Anchor,
				Context: l.Context,
			})
		}
		if len(locs) == 0 {
			continue
		}
		out = append(out, Backlink{SourceURI: src, SourceName: sd.Name, Locations: locs})
	}
	slices.SortFunc(out, func(a, b Backlink) int {
		return cmp.Or(cmp.Compare(a.SourceName, b.SourceName), cmp.Compare(a.SourceURI, b.SourceURI))
	})
	return out, nil
}

// Bridge is a note that the queried note and its co-linkers all target.
type Bridge struct {
	Name  string   `json:"bridge"`
	Notes []string `json:"notes"`
}

// TwoHop returns, for every note uri links to, the other notes linking to
// it too. Bridges without co-linkers are omitted. Bridges are ordered by
// co-linker count, most first, then by name.
func (r *Repository) TwoHop(uri string) ([]Bridge, error) {
	doc, ok := r.Get(uri)
	if !ok {
		if _, err := PathFromURI(uri); err != nil {
			return nil, fmt.Errorf("workspace: two hop: %w", err)
		}
		return nil, nil
	}
	var out []Bridge
	for _, target := range doc.Targets() {
		if target == doc.Name {
			continue
		}
		bridgeURI := ""
		if bd, ok := r.GetByName(target); ok {
			bridgeURI = bd.URI
		}
		var notes []string
		for _, src := range r.graph.sources(target) {
			if src == uri || src == bridgeURI {
				continue
			}
			if sd, ok := r.Get(src); ok {
				notes = append(notes, sd.Name)
			}
		}
		if len(notes) == 0 {
			continue
		}
		slices.Sort(notes)
		out = append(out, Bridge{Name: target, Notes: slices.Compact(notes)})
	}
	slices.SortFunc(out, func(a, b Bridge) int {
		return cmp.Or(cmp.Compare(len(b.Notes), len(a.Notes)), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

// TaskItem is a task found somewhere in the workspace.
type TaskItem struct {
	URI    string            `json:"uri"`
	Name   string            `json:"name"`
	Row    int               `json:"row"`
	Text   string            `json:"text"`
	Status syntax.TaskStatus `json:"-"`
	Due    syntax.Deadline   `json:"-"`
}

// AggregateTasks collects every task in the workspace, unordered.
func (r *Repository) AggregateTasks() []TaskItem {
	var out []TaskItem
	for d := range r.All() {
		for _, t := range d.Tasks {
			out = append(out, TaskItem{
				URI:    d.URI,
				Name:   d.Name,
				Row:    t.Row,
				Text:   t.Text,
				Status: t.Status,
				Due:    t.Due,
			})
		}
	}
	return out
}

// SortTasks orders tasks by due date (undated last), then note and row.
func SortTasks(items []TaskItem) {
	slices.SortStableFunc(items, func(a, b TaskItem) int {
		switch {
		case a.Due.Before(b.Due):
			return -1
		case b.Due.Before(a.Due):
			return 1
		}
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Row, b.Row))
	})
}

// LinkTarget is where a link resolves to. Row is the anchor's row, or 0
// when no anchor was given or it was not found.
type LinkTarget struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Row         int    `json:"row"`
	AnchorFound bool   `json:"anchor_found"`
}

// ResolveLink finds the note a link in from points to. An empty target is
// a self link; any other target is a root-relative note name, the same key
// the backlink graph uses.
func (r *Repository) ResolveLink(from, target, anchor string) (LinkTarget, bool) {
	var doc *Document
	if target == "" {
		d, ok := r.Get(from)
		if !ok {
			return LinkTarget{}, false
		}
		doc = d
	} else if d, ok := r.GetByName(target); ok {
		doc = d
	}
	if doc == nil {
		return LinkTarget{}, false
	}
	lt := LinkTarget{URI: doc.URI, Name: doc.Name}
	if anchor != "" {
		for _, a := range doc.Anchors {
			if a.Name == anchor {
				lt.Row = a.Row
				lt.AnchorFound = true
				break
			}
		}
	}
	return lt, true
}

func (r *Repository) nameOf(uri string) (string, error) {
	if d, ok := r.Get(uri); ok {
		return d.Name, nil
	}
	p, err := PathFromURI(uri)
	if err != nil {
		return "", err
	}
	return noteName(r.root, r.ext, p), nil
}
