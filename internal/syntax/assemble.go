package syntax

import (
	"strings"
)

// Tree is a parsed document.
type Tree struct {
	Root *Node
	// Blocks is the flattened list of top-level blocks, in row order.
	Blocks []*Node
	Lines  []Line
	// Snapshots holds the tokenizer state in effect before each row, so
	// lexing can resume from any line.
	Snapshots   []IndentState
	Diagnostics []Diagnostic
}

// Parse tokenizes and assembles text into a tree. It never fails: lines
// that cannot be parsed are kept as text and reported as diagnostics.
func Parse(text string) *Tree {
	toks, _ := Lex(text, NewIndentState())

	var (
		lines []Line
		snaps []IndentState
	)
	st := NewIndentState()
	lastRow := -1
	for _, tok := range toks {
		if tok.Line.Row > lastRow {
			snaps = append(snaps, st.Clone())
			lastRow = tok.Line.Row
		}
		switch tok.Kind {
		case TokenIndent:
			st.Stack = append(st.Stack, tok.Line.Depth)
		case TokenDedent:
			if len(st.Stack) > 1 {
				st.Stack = st.Stack[:len(st.Stack)-1]
			}
		case TokenNewline:
			lines = append(lines, tok.Line)
		}
	}

	root := &Node{
		Kind:     KindDummy,
		Location: Location{Span: Span{Start: 0, End: len(text)}, Input: text},
		Depth:    -1,
	}
	a := assembler{text: text}
	a.nest(root, lines, KindLine)
	assignIDs(root)

	return &Tree{
		Root:        root,
		Blocks:      root.Children,
		Lines:       lines,
		Snapshots:   snaps,
		Diagnostics: a.diags,
	}
}

type frame struct {
	node  *Node
	depth int
}

type assembler struct {
	text  string
	diags []Diagnostic
}

func (a *assembler) parser(ln Line) *lineParser {
	return &lineParser{row: ln.Row, input: a.text[ln.Start:ln.End], offset: ln.Start}
}

// nest attaches lines under parent using the indentation frame stack.
// kind is KindLine for the document body and KindQuoteContent inside a
// quote, where block commands are not recognized.
func (a *assembler) nest(parent *Node, lines []Line, kind Kind) {
	next := nextDepths(lines)
	frames := []frame{{node: parent, depth: parent.Depth}}
	top := func() frame { return frames[len(frames)-1] }
	popTo := func(d int) {
		for len(frames) > 1 && top().depth >= d {
			frames = frames[:len(frames)-1]
		}
	}
	lastDepth := parent.Depth

	for i := 0; i < len(lines); {
		ln := lines[i]
		lp := a.parser(ln)

		if ln.Blank {
			// A blank line belongs to the block that follows it.
			d := next[i]
			if d < 0 {
				d = parent.Depth + 1
			}
			d = max(min(d, lastDepth+1), parent.Depth+1)
			popTo(d)
			n := lp.node(kind, 0, len(lp.input))
			n.Depth = d
			top().node.Children = append(top().node.Children, n)
			i++
			continue
		}

		d := ln.Depth
		popTo(d)
		if d > top().depth+1 {
			a.diags = append(a.diags, Diagnostic{
				Row:      ln.Row,
				Span:     Span{Start: 0, End: d},
				Severity: SeverityWarning,
				Message:  "unexpected indentation",
			})
		}

		res := lp.parse(d, kind == KindLine)
		if res.Diagnostic != nil {
			a.diags = append(a.diags, *res.Diagnostic)
		}
		n := lp.node(kind, 0, len(lp.input))
		n.Depth = d
		n.Contents = res.Contents
		n.Properties = res.Properties
		top().node.Children = append(top().node.Children, n)
		frames = append(frames, frame{node: n, depth: d})
		lastDepth = d
		i++

		if res.Block == nil {
			continue
		}
		j := i
		for j < len(lines) {
			if lines[j].Blank {
				if next[j] <= d {
					break
				}
			} else if lines[j].Depth <= d {
				break
			}
			j++
		}
		a.capture(res.Block, d+1, lines[i:j])
		i = j
	}
}

// nextDepths returns, for every line, the depth of the first non-blank
// line at or after it, or -1 when only blank lines follow.
func nextDepths(lines []Line) []int {
	out := make([]int, len(lines))
	d := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if !lines[i].Blank {
			d = lines[i].Depth
		}
		out[i] = d
	}
	return out
}

// capture stores a block body verbatim under block. base is the depth of
// the body relative to the document.
func (a *assembler) capture(block *Node, base int, body []Line) {
	switch block.Kind {
	case KindQuote:
		block.Depth = base - 1
		a.nest(block, body, KindQuoteContent)
		block.Depth = 0
	case KindTable:
		for _, ln := range body {
			if ln.Blank {
				continue
			}
			block.Children = append(block.Children, a.tableRow(ln, base))
		}
	default:
		for _, ln := range body {
			lp := a.parser(ln)
			start := leadingTabs(lp.input, base)
			block.Children = append(block.Children, lp.text(start, len(lp.input)))
		}
	}
}

func (a *assembler) tableRow(ln Line, base int) *Node {
	lp := a.parser(ln)
	row := lp.node(KindLine, 0, len(lp.input))
	row.Depth = ln.Depth

	start := leadingTabs(lp.input, base)
	for start <= len(lp.input) {
		end := strings.IndexByte(lp.input[start:], '\t')
		if end < 0 {
			end = len(lp.input)
		} else {
			end += start
		}
		cell := lp.node(KindTableColumn, start, end)
		contents, _, err := lp.inline(start, end, Decoration{}, false)
		if err != nil {
			contents = []*Node{lp.text(start, end)}
			a.diags = append(a.diags, Diagnostic{
				Row:      ln.Row,
				Span:     Span{Start: start, End: end},
				Severity: SeverityError,
				Message:  err.Error(),
			})
		}
		cell.Contents = contents
		row.Contents = append(row.Contents, cell)
		start = end + 1
	}
	return row
}

func leadingTabs(s string, limit int) int {
	n := 0
	for n < len(s) && n < limit && s[n] == '\t' {
		n++
	}
	return n
}
