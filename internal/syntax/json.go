package syntax

import (
	"encoding/json"
	"fmt"
)

type jsonLocation struct {
	Row   int    `json:"row"`
	Span  [2]int `json:"span"`
	Input string `json:"input"`
}

type jsonValue struct {
	Kind     json.RawMessage `json:"kind"`
	Contents []*Node         `json:"contents"`
	Children []*Node         `json:"children"`
	StableID string          `json:"stable_id"`
}

type jsonNode struct {
	Location jsonLocation `json:"location"`
	Value    jsonValue    `json:"value"`
}

type jsonDeadline struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type jsonProperty struct {
	Type   string        `json:"type"`
	Status string        `json:"status,omitempty"`
	Due    *jsonDeadline `json:"due,omitempty"`
	Name   string        `json:"name,omitempty"`
	Span   [2]int        `json:"span"`
}

// jsonKind is the decoding view of the kind object; encoding writes only
// the fields that belong to the node's kind.
type jsonKind struct {
	Type       string         `json:"type"`
	Inline     bool           `json:"inline"`
	Lang       string         `json:"lang"`
	Caption    string         `json:"caption"`
	Src        string         `json:"src"`
	Alt        string         `json:"alt"`
	Link       string         `json:"link"`
	Anchor     *string        `json:"anchor"`
	Title      string         `json:"title"`
	Bold       bool           `json:"bold"`
	Italic     bool           `json:"italic"`
	Underline  bool           `json:"underline"`
	Deleted    bool           `json:"deleted"`
	Size       int            `json:"size"`
	Properties []jsonProperty `json:"properties"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (n *Node) kindFields() map[string]any {
	m := map[string]any{"type": n.Kind.String()}
	switch n.Kind {
	case KindCode:
		m["inline"] = n.Inline
		m["lang"] = n.Lang
	case KindMath:
		m["inline"] = n.Inline
	case KindTable:
		m["caption"] = n.Caption
	case KindImage:
		m["src"] = n.Src
		m["alt"] = optional(n.Alt)
	case KindWikiLink:
		m["link"] = n.Target
		m["anchor"] = optional(n.Anchor)
	case KindLink, KindEmbed:
		m["link"] = n.URL
		m["title"] = optional(n.Title)
	case KindDecoration:
		m["bold"] = n.Style.Bold
		m["italic"] = n.Style.Italic
		m["underline"] = n.Style.Underline
		m["deleted"] = n.Style.Deleted
		m["size"] = n.Style.Size
	case KindLine, KindQuoteContent:
		props := make([]jsonProperty, 0, len(n.Properties))
		for _, p := range n.Properties {
			props = append(props, encodeProperty(p))
		}
		m["properties"] = props
	}
	return m
}

func encodeProperty(p Property) jsonProperty {
	out := jsonProperty{Span: [2]int{p.Span.Start, p.Span.End}}
	if p.Kind == PropertyAnchor {
		out.Type = "Anchor"
		out.Name = p.Name
		return out
	}
	out.Type = "Task"
	out.Status = p.Status.String()
	switch p.Due.Kind {
	case DeadlineDate:
		out.Due = &jsonDeadline{Type: "Date", Value: p.Due.String()}
	case DeadlineDateTime:
		out.Due = &jsonDeadline{Type: "DateTime", Value: p.Due.String()}
	case DeadlineUninterpretable:
		out.Due = &jsonDeadline{Type: "Uninterpretable", Value: p.Due.Raw}
	}
	return out
}

func decodeProperty(j jsonProperty) Property {
	p := Property{Span: Span{Start: j.Span[0], End: j.Span[1]}}
	if j.Type == "Anchor" {
		p.Kind = PropertyAnchor
		p.Name = j.Name
		return p
	}
	p.Kind = PropertyTask
	p.Status = ParseTaskStatus(j.Status)
	if j.Due != nil {
		p.Due = ParseDeadline(j.Due.Value)
	}
	return p
}

// MarshalJSON writes the node as
// {location:{row,span,input},value:{kind,contents,children,stable_id}}.
func (n *Node) MarshalJSON() ([]byte, error) {
	kind, err := json.Marshal(n.kindFields())
	if err != nil {
		return nil, err
	}
	contents, children := n.Contents, n.Children
	if contents == nil {
		contents = []*Node{}
	}
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(jsonNode{
		Location: jsonLocation{
			Row:   n.Location.Row,
			Span:  [2]int{n.Location.Span.Start, n.Location.Span.End},
			Input: n.Location.Input,
		},
		Value: jsonValue{
			Kind:     kind,
			Contents: contents,
			Children: children,
			StableID: n.StableID,
		},
	})
}

// UnmarshalJSON reads the shape written by MarshalJSON. Document offsets
// are not part of the wire format and come back as zero.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw jsonNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var k jsonKind
	if err := json.Unmarshal(raw.Value.Kind, &k); err != nil {
		return fmt.Errorf("syntax: decode kind: %w", err)
	}
	kind, ok := kindFromString(k.Type)
	if !ok {
		return fmt.Errorf("syntax: unknown node kind %q", k.Type)
	}
	span := Span{Start: raw.Location.Span[0], End: raw.Location.Span[1]}
	if span.Start < 0 || span.End > len(raw.Location.Input) || span.Start > span.End {
		return fmt.Errorf("syntax: span %v out of range", raw.Location.Span)
	}

	*n = Node{
		Kind: kind,
		Location: Location{
			Row:   raw.Location.Row,
			Span:  span,
			Input: raw.Location.Input,
		},
		Inline:   k.Inline,
		Lang:     k.Lang,
		Caption:  k.Caption,
		Src:      k.Src,
		Alt:      k.Alt,
		Title:    k.Title,
		Contents: raw.Value.Contents,
		Children: raw.Value.Children,
		StableID: raw.Value.StableID,
	}
	switch kind {
	case KindWikiLink:
		n.Target = k.Link
		if k.Anchor != nil {
			n.Anchor = *k.Anchor
		}
	case KindLink, KindEmbed:
		n.URL = k.Link
	case KindDecoration:
		n.Style = Decoration{Bold: k.Bold, Italic: k.Italic, Underline: k.Underline, Deleted: k.Deleted, Size: k.Size}
	case KindLine, KindQuoteContent:
		for _, p := range k.Properties {
			n.Properties = append(n.Properties, decodeProperty(p))
		}
	}
	return nil
}

// MarshalJSON writes the diagnostic with its span and severity name.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Row      int    `json:"row"`
		Span     [2]int `json:"span"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	}{d.Row, [2]int{d.Span.Start, d.Span.End}, d.Severity.String(), d.Message})
}
