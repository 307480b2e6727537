package syntax

import (
	"encoding/binary"
	"errors"
	"strings"
)

// MaxIndent caps the number of indent levels the tokenizer tracks.
const MaxIndent = 256

// TokenKind is the type of a layout token.
type TokenKind int

const (
	TokenNewline TokenKind = iota
	TokenIndent
	TokenDedent
)

func (k TokenKind) String() string {
	switch k {
	case TokenIndent:
		return "INDENT"
	case TokenDedent:
		return "DEDENT"
	default:
		return "NEWLINE"
	}
}

// Line describes one physical line. Start and End are byte offsets into
// the document; End excludes the line break. Depth counts leading tabs.
type Line struct {
	Row   int
	Start int
	End   int
	Depth int
	Blank bool
}

// Token is a layout token produced for a line.
type Token struct {
	Kind TokenKind
	Line Line
}

// IndentState is the tokenizer's indent stack. Stack[0] is the base depth
// and is never popped. The zero value behaves like NewIndentState().
type IndentState struct {
	Stack []int `json:"stack"`
}

// NewIndentState returns a stack holding only the base depth 0.
func NewIndentState() IndentState {
	return IndentState{Stack: []int{0}}
}

// Top returns the innermost active indent width.
func (s IndentState) Top() int {
	if len(s.Stack) == 0 {
		return 0
	}
	return s.Stack[len(s.Stack)-1]
}

// Clone returns an independent copy of s.
func (s IndentState) Clone() IndentState {
	if len(s.Stack) == 0 {
		return NewIndentState()
	}
	return IndentState{Stack: append([]int(nil), s.Stack...)}
}

// Equal reports whether both stacks hold the same widths.
func (s IndentState) Equal(o IndentState) bool {
	a, b := s.normalized(), o.normalized()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s IndentState) normalized() []int {
	if len(s.Stack) == 0 {
		return []int{0}
	}
	return s.Stack
}

var errShortState = errors.New("syntax: indent state: short buffer")

// MarshalBinary encodes the stack as a length-prefixed list of uint16 widths.
func (s IndentState) MarshalBinary() ([]byte, error) {
	st := s.normalized()
	buf := make([]byte, 2+2*len(st))
	binary.BigEndian.PutUint16(buf, uint16(len(st)))
	for i, w := range st {
		binary.BigEndian.PutUint16(buf[2+2*i:], uint16(w))
	}
	return buf, nil
}

// UnmarshalBinary restores a stack written by MarshalBinary.
func (s *IndentState) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return errShortState
	}
	n := int(binary.BigEndian.Uint16(data))
	if n == 0 || n > MaxIndent+1 {
		return errors.New("syntax: indent state: invalid depth")
	}
	if len(data) < 2+2*n {
		return errShortState
	}
	st := make([]int, n)
	for i := range st {
		st[i] = int(binary.BigEndian.Uint16(data[2+2*i:]))
	}
	s.Stack = st
	return nil
}

// Lex tokenizes the whole text starting from state and returns the tokens
// together with the final state, which is always back at the base depth.
func Lex(text string, state IndentState) ([]Token, IndentState) {
	return LexFrom(text, 0, 0, state)
}

// LexFrom resumes tokenizing at byte offset and row with a previously
// recorded state, typically a snapshot taken before that row.
func LexFrom(text string, offset, row int, state IndentState) ([]Token, IndentState) {
	st := state.Clone()
	var toks []Token
	var last Line
	for _, ln := range SplitLines(text, offset, row) {
		toks = lexLine(toks, ln, &st)
		last = ln
	}
	for len(st.Stack) > 1 {
		st.Stack = st.Stack[:len(st.Stack)-1]
		toks = append(toks, Token{Kind: TokenDedent, Line: last})
	}
	return toks, st
}

func lexLine(toks []Token, ln Line, st *IndentState) []Token {
	if ln.Blank {
		return append(toks, Token{Kind: TokenNewline, Line: ln})
	}
	w := ln.Depth
	for len(st.Stack) > 1 && w < st.Top() {
		st.Stack = st.Stack[:len(st.Stack)-1]
		toks = append(toks, Token{Kind: TokenDedent, Line: ln})
	}
	if w > st.Top() && len(st.Stack) <= MaxIndent {
		st.Stack = append(st.Stack, w)
		toks = append(toks, Token{Kind: TokenIndent, Line: ln})
	}
	return append(toks, Token{Kind: TokenNewline, Line: ln})
}

// SplitLines breaks text[offset:] into physical lines. A trailing line
// break does not start another line; "\r\n" counts as one break.
func SplitLines(text string, offset, row int) []Line {
	var out []Line
	pos := offset
	for pos < len(text) {
		end := strings.IndexByte(text[pos:], '\n')
		next := len(text)
		if end < 0 {
			end = len(text)
		} else {
			end += pos
			next = end + 1
		}
		stop := end
		if stop > pos && text[stop-1] == '\r' {
			stop--
		}
		out = append(out, newLine(text, row, pos, stop))
		row++
		pos = next
	}
	return out
}

func newLine(text string, row, start, end int) Line {
	s := text[start:end]
	ln := Line{Row: row, Start: start, End: end}
	if strings.TrimRight(s, " \t\r") == "" {
		ln.Blank = true
		return ln
	}
	d := 0
	for d < len(s) && s[d] == '\t' {
		d++
	}
	if d > MaxIndent {
		d = MaxIndent
	}
	ln.Depth = d
	return ln
}
