// Package syntax implements the tokenizer, line grammar and document
// assembler for the tab-indented note format.
package syntax

import (
	"fmt"
	"time"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	KindDummy Kind = iota
	KindLine
	KindQuoteContent
	KindQuote
	KindCode
	KindMath
	KindImage
	KindWikiLink
	KindLink
	KindEmbed
	KindDecoration
	KindText
	KindHorizontalLine
	KindTable
	KindTableColumn
)

var kindNames = [...]string{
	KindDummy:          "Dummy",
	KindLine:           "Line",
	KindQuoteContent:   "QuoteContent",
	KindQuote:          "Quote",
	KindCode:           "Code",
	KindMath:           "Math",
	KindImage:          "Image",
	KindWikiLink:       "WikiLink",
	KindLink:           "Link",
	KindEmbed:          "Embed",
	KindDecoration:     "Decoration",
	KindText:           "Text",
	KindHorizontalLine: "HorizontalLine",
	KindTable:          "Table",
	KindTableColumn:    "TableColumn",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func kindFromString(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Location places a node in its source. Span indexes into Input, which is
// the text of the physical line the node came from (the whole document for
// the root). Offset is the byte position of Input within the document.
type Location struct {
	Row    int
	Span   Span
	Input  string
	Offset int
}

// Text returns the source text covered by the location.
func (l Location) Text() string {
	return l.Input[l.Span.Start:l.Span.End]
}

// Decoration describes the styles applied by a decoration node.
// Size counts the '*' symbols, so Bold implies Size >= 1.
type Decoration struct {
	Bold      bool
	Italic    bool
	Underline bool
	Deleted   bool
	Size      int
}

func (d Decoration) overlaps(o Decoration) bool {
	return (d.Bold && o.Bold) || (d.Italic && o.Italic) ||
		(d.Underline && o.Underline) || (d.Deleted && o.Deleted)
}

func (d Decoration) merge(o Decoration) Decoration {
	d.Bold = d.Bold || o.Bold
	d.Italic = d.Italic || o.Italic
	d.Underline = d.Underline || o.Underline
	d.Deleted = d.Deleted || o.Deleted
	if o.Size > d.Size {
		d.Size = o.Size
	}
	return d
}

// Node is one element of the syntax tree. Kind selects which payload
// fields are meaningful:
//
//	Code            Inline, Lang
//	Math            Inline
//	Table           Caption
//	Image           Src, Alt
//	WikiLink        Target, Anchor
//	Link, Embed     URL, Title
//	Decoration      Style
//	Line            Depth, Properties
//	QuoteContent    Depth, Properties
type Node struct {
	Kind     Kind
	Location Location

	Inline  bool
	Lang    string
	Caption string
	Src     string
	Alt     string
	Target  string
	Anchor  string
	URL     string
	Title   string
	Style   Decoration
	Depth   int

	Properties []Property

	// Contents are the inline nodes on the same line, Children the nested
	// block lines owned by this node.
	Contents []*Node
	Children []*Node

	StableID string
}

// Text returns the source text the node was parsed from.
func (n *Node) Text() string { return n.Location.Text() }

// Walk visits n and every descendant in document order: a node first,
// then its inline contents, then its block children. Returning false
// from fn skips the node's descendants.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Contents {
		c.Walk(fn)
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// TaskStatus is the state of a task property.
type TaskStatus int

const (
	TaskTodo TaskStatus = iota
	TaskDoing
	TaskDone
)

func (s TaskStatus) String() string {
	switch s {
	case TaskDoing:
		return "doing"
	case TaskDone:
		return "done"
	default:
		return "todo"
	}
}

// ParseTaskStatus maps a status keyword to a TaskStatus. Unknown values
// fall back to TaskTodo.
func ParseTaskStatus(s string) TaskStatus {
	switch s {
	case "doing":
		return TaskDoing
	case "done":
		return TaskDone
	default:
		return TaskTodo
	}
}

// DeadlineKind classifies a task due date.
type DeadlineKind int

const (
	DeadlineNone DeadlineKind = iota
	DeadlineDate
	DeadlineDateTime
	DeadlineUninterpretable
)

// Deadline is a task due date. Raw keeps the original text so that an
// uninterpretable value can still be displayed.
type Deadline struct {
	Kind DeadlineKind
	Time time.Time
	Raw  string
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04"
)

// ParseDeadline interprets s as a date-time, then a date. It never fails.
func ParseDeadline(s string) Deadline {
	if s == "" {
		return Deadline{}
	}
	if t, err := time.Parse(dateTimeLayout, s); err == nil {
		return Deadline{Kind: DeadlineDateTime, Time: t, Raw: s}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Deadline{Kind: DeadlineDate, Time: t, Raw: s}
	}
	return Deadline{Kind: DeadlineUninterpretable, Raw: s}
}

func (d Deadline) String() string {
	switch d.Kind {
	case DeadlineDate:
		return d.Time.Format(dateLayout)
	case DeadlineDateTime:
		return d.Time.Format(dateTimeLayout)
	default:
		return d.Raw
	}
}

// Before orders deadlines for display: interpretable dates first by time,
// then uninterpretable ones, then missing ones.
func (d Deadline) Before(o Deadline) bool {
	rank := func(x Deadline) int {
		switch x.Kind {
		case DeadlineDate, DeadlineDateTime:
			return 0
		case DeadlineUninterpretable:
			return 1
		default:
			return 2
		}
	}
	if rank(d) != rank(o) {
		return rank(d) < rank(o)
	}
	if rank(d) == 0 {
		return d.Time.Before(o.Time)
	}
	return d.Raw < o.Raw
}

// PropertyKind distinguishes line properties.
type PropertyKind int

const (
	PropertyTask PropertyKind = iota
	PropertyAnchor
)

// Property is a line-level attribute: a task or an anchor.
type Property struct {
	Kind   PropertyKind
	Status TaskStatus
	Due    Deadline
	Name   string
	Span   Span
}

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic reports a problem found while parsing. Span is relative to
// the line at Row.
type Diagnostic struct {
	Row      int
	Span     Span
	Severity Severity
	Message  string
}
