package workspace

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/starford/patto/internal/apperr"
	"github.com/starford/patto/internal/checksum"
	"github.com/starford/patto/internal/syntax"
)

const contextRunes = 80

// Link is an outgoing wiki link.
type Link struct {
	Target  string      `json:"target"`
	Anchor  string      `json:"anchor,omitempty"`
	Row     int         `json:"row"`
	Span    syntax.Span `json:"-"`
	Context string      `json:"context"`
}

// Anchor is a named location inside a note.
type Anchor struct {
	Name string `json:"name"`
	Row  int    `json:"row"`
}

// Task is a line carrying a task property.
type Task struct {
	Row    int               `json:"row"`
	Text   string            `json:"text"`
	Status syntax.TaskStatus `json:"-"`
	Due    syntax.Deadline   `json:"-"`
}

// Document is an immutable snapshot of one parsed note. Replacing a note
// swaps the whole *Document, so readers never observe a partial update.
type Document struct {
	URI       string
	Path      string
	Name      string
	Text      string
	Version   int64
	Checksum  string
	ModTime   time.Time
	CreatedAt time.Time

	Tree        *syntax.Tree
	Diagnostics []syntax.Diagnostic
	Links       []Link
	Anchors     []Anchor
	Tasks       []Task

	seq        uint64
	scanGen    uint64
	onDisk     bool
	lineStarts []int
}

func newDocument(uri, path, name, text string) *Document {
	tree := syntax.Parse(text)
	d := &Document{
		URI:         uri,
		Path:        path,
		Name:        name,
		Text:        text,
		Checksum:    checksum.SumString(text),
		Tree:        tree,
		Diagnostics: tree.Diagnostics,
		lineStarts:  lineStarts(text),
	}
	d.Links, d.Anchors, d.Tasks = extract(tree)
	return d
}

// Targets returns the distinct link target names in first-seen order.
func (d *Document) Targets() []string {
	seen := make(map[string]bool, len(d.Links))
	var out []string
	for _, l := range d.Links {
		if l.Target == "" || seen[l.Target] {
			continue
		}
		seen[l.Target] = true
		out = append(out, l.Target)
	}
	return out
}

// AnchorNames returns the anchor names declared in the note.
func (d *Document) AnchorNames() []string {
	out := make([]string, 0, len(d.Anchors))
	for _, a := range d.Anchors {
		out = append(out, a.Name)
	}
	return out
}

// HasAnchor reports whether the note declares name.
func (d *Document) HasAnchor(name string) bool {
	for _, a := range d.Anchors {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Line returns the text of row without its line terminator.
func (d *Document) Line(row int) string {
	if row < 0 || row >= len(d.lineStarts) {
		return ""
	}
	start := d.lineStarts[row]
	end := len(d.Text)
	if row+1 < len(d.lineStarts) {
		end = d.lineStarts[row+1]
	}
	return strings.TrimRight(d.Text[start:end], "\r\n")
}

// Position is a zero-based line and UTF-16 column, the unit editors
// address text in.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open position range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextChange is an editor edit. A nil Range replaces the whole text.
type TextChange struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// OffsetAt converts an editor position into a byte offset.
func (d *Document) OffsetAt(p Position) int {
	return offsetAt(d.Text, d.lineStarts, p)
}

// PositionAt converts a byte offset into an editor position.
func (d *Document) PositionAt(offset int) Position {
	return positionAt(d.Text, d.lineStarts, offset)
}

// TextAt returns the text covered by an editor range.
func (d *Document) TextAt(rg Range) string {
	from, to := d.OffsetAt(rg.Start), d.OffsetAt(rg.End)
	if from > to {
		return ""
	}
	return d.Text[from:to]
}

// RangeOf converts a span on row into an editor range.
func (d *Document) RangeOf(row int, span syntax.Span) Range {
	if row < 0 || row >= len(d.lineStarts) {
		return Range{}
	}
	base := d.lineStarts[row]
	return Range{
		Start: d.PositionAt(base + span.Start),
		End:   d.PositionAt(base + span.End),
	}
}

// ApplyChanges applies edits to text in order, each against the result of
// the previous one.
func ApplyChanges(text string, changes []TextChange) (string, error) {
	for i, c := range changes {
		if c.Range == nil {
			text = c.Text
			continue
		}
		starts := lineStarts(text)
		from := offsetAt(text, starts, c.Range.Start)
		to := offsetAt(text, starts, c.Range.End)
		if from > to {
			return "", fmt.Errorf("%w: change %d: start after end", apperr.ErrInvalidInput, i)
		}
		text = text[:from] + c.Text + text[to:]
	}
	return text, nil
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func offsetAt(text string, starts []int, p Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(starts) {
		return len(text)
	}
	i := starts[p.Line]
	end := len(text)
	if p.Line+1 < len(starts) {
		end = starts[p.Line+1] - 1
	}
	if end > i && text[end-1] == '\r' {
		end--
	}
	units := 0
	for i < end && units < p.Character {
		r, size := utf8.DecodeRuneInString(text[i:end])
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		units += n
		i += size
	}
	return i
}

func positionAt(text string, starts []int, offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	line := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
	units := 0
	for _, r := range text[starts[line]:offset] {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		units += n
	}
	return Position{Line: line, Character: units}
}

// extract collects links, anchors and tasks in document order.
func extract(tree *syntax.Tree) (links []Link, anchors []Anchor, tasks []Task) {
	tree.Root.Walk(func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.KindWikiLink:
			links = append(links, Link{
				Target:  n.Target,
				Anchor:  n.Anchor,
				Row:     n.Location.Row,
				Span:    n.Location.Span,
				Context: snippet(n.Location.Input),
			})
		case syntax.KindLine, syntax.KindQuoteContent:
			for _, p := range n.Properties {
				switch p.Kind {
				case syntax.PropertyAnchor:
					anchors = append(anchors, Anchor{Name: p.Name, Row: n.Location.Row})
				case syntax.PropertyTask:
					tasks = append(tasks, Task{
						Row:    n.Location.Row,
						Text:   lineBody(n),
						Status: p.Status,
						Due:    p.Due,
					})
				}
			}
		}
		return true
	})
	return links, anchors, tasks
}

// lineBody is the line's inline text without indentation or properties.
func lineBody(n *syntax.Node) string {
	if len(n.Contents) == 0 {
		return ""
	}
	first := n.Contents[0].Location.Span.Start
	last := n.Contents[len(n.Contents)-1].Location.Span.End
	return strings.TrimSpace(n.Location.Input[first:last])
}

func snippet(line string) string {
	s := strings.TrimSpace(line)
	if utf8.RuneCountInString(s) <= contextRunes {
		return s
	}
	r := []rune(s)
	return string(r[:contextRunes]) + "..."
}
