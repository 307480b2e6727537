package syntax

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// LineResult is the outcome of parsing one line.
type LineResult struct {
	// Block is set when the line opens a code, math, quote or table block.
	Block *Node
	// Contents are the inline nodes of the line. For a block opener they
	// hold the Block node itself.
	Contents   []*Node
	Properties []Property
	// Diagnostic is set when the line could not be parsed and was kept as
	// a single text node.
	Diagnostic *Diagnostic
}

// ParseLine parses a single line with no surrounding document. Spans in
// the result index into line.
func ParseLine(line string) LineResult {
	p := lineParser{input: line}
	return p.parse(0, true)
}

// strictError marks constructs whose opener commits the parser. Once such
// an opener is seen, a missing terminator makes the whole line unparseable.
type strictError struct{ msg string }

func (e *strictError) Error() string { return e.msg }

// errUnclosed is returned by nested parsing when the closing bracket of a
// decoration is missing; the caller then treats the opener as text.
var errUnclosed = errors.New("unclosed bracket")

var (
	commandRe  = regexp.MustCompile(`^\[@([A-Za-z]+)(?:[ \t]+([^\]]*?))?[ \t]*\]$`)
	hrRe       = regexp.MustCompile(`^-{5,}$`)
	shortTask  = regexp.MustCompile(`^([!*\-])(\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2})?|\d{4}-\d{1,2}-\d{1,2}\S*)$`)
	mailRe     = regexp.MustCompile(`^[^\s@\[\]]+@[^\s@\[\]]+\.[A-Za-z]{2,}$`)
	embedHosts = []string{"youtube.com", "youtu.be", "twitter.com", "x.com", "speakerdeck.com", "gist.github.com"}
)

type lineParser struct {
	row    int
	input  string
	offset int
	props  []Property
}

func (p *lineParser) node(kind Kind, start, end int) *Node {
	return &Node{
		Kind: kind,
		Location: Location{
			Row:    p.row,
			Span:   Span{Start: start, End: end},
			Input:  p.input,
			Offset: p.offset,
		},
	}
}

func (p *lineParser) text(start, end int) *Node {
	return p.node(KindText, start, end)
}

// parse handles the content of a line beginning at start. Commands and
// horizontal rules are only recognized when allowBlocks is set.
func (p *lineParser) parse(start int, allowBlocks bool) LineResult {
	p.props = nil
	trailing, cut := p.trailingProperties(start, len(p.input))
	content := strings.TrimRight(p.input[start:cut], " \t")

	if allowBlocks {
		if m := commandRe.FindStringSubmatchIndex(content); m != nil {
			name := content[m[2]:m[3]]
			arg := ""
			if m[4] >= 0 {
				arg = strings.TrimSpace(content[m[4]:m[5]])
			}
			if blk := p.command(name, arg, start, start+len(content)); blk != nil {
				return LineResult{Block: blk, Contents: []*Node{blk}, Properties: trailing}
			}
			if name != "img" {
				return p.fail(start, "unknown command [@"+name+"]")
			}
		}
		if hrRe.MatchString(content) {
			return LineResult{
				Contents:   []*Node{p.node(KindHorizontalLine, start, start+len(content))},
				Properties: trailing,
			}
		}
	}

	nodes, _, err := p.inline(start, cut, Decoration{}, false)
	if err != nil {
		var se *strictError
		if errors.As(err, &se) {
			return p.fail(start, se.msg)
		}
		return p.fail(start, err.Error())
	}
	return LineResult{Contents: nodes, Properties: append(p.props, trailing...)}
}

func (p *lineParser) fail(start int, msg string) LineResult {
	p.props = nil
	return LineResult{
		Contents: []*Node{p.text(start, len(p.input))},
		Diagnostic: &Diagnostic{
			Row:      p.row,
			Span:     Span{Start: start, End: len(p.input)},
			Severity: SeverityError,
			Message:  msg,
		},
	}
}

func (p *lineParser) command(name, arg string, start, end int) *Node {
	var n *Node
	switch name {
	case "code":
		n = p.node(KindCode, start, end)
		n.Lang = arg
	case "math":
		n = p.node(KindMath, start, end)
	case "quote":
		n = p.node(KindQuote, start, end)
	case "table":
		n = p.node(KindTable, start, end)
		n.Caption = arg
	}
	return n
}

// inline parses [pos, end). When nested is set parsing stops at the first
// unmatched ']' and returns the position of that bracket. A '[' that opens
// no construct is literal text and so is the ']' balancing it.
func (p *lineParser) inline(pos, end int, enclosing Decoration, nested bool) ([]*Node, int, error) {
	var out []*Node
	literal := 0
	textStart := -1
	flush := func(at int) {
		if textStart >= 0 && at > textStart {
			out = append(out, p.text(textStart, at))
		}
		textStart = -1
	}
	for pos < end {
		c := p.input[pos]
		if nested && c == ']' {
			if literal == 0 {
				flush(pos)
				return out, pos, nil
			}
			literal--
		}
		if c == '[' || c == '{' {
			n, next, err := p.construct(pos, end, enclosing)
			if err != nil {
				return nil, pos, err
			}
			if next > pos {
				flush(pos)
				if n != nil {
					out = append(out, n)
				}
				pos = next
				continue
			}
			if c == '[' {
				literal++
			}
		}
		if textStart < 0 {
			textStart = pos
		}
		pos++
	}
	if nested {
		return nil, pos, errUnclosed
	}
	flush(end)
	return out, end, nil
}

// construct tries every bracketed form at pos. It returns next == pos when
// nothing matched, and a nil node for constructs that only yield a
// property.
func (p *lineParser) construct(pos, end int, enclosing Decoration) (*Node, int, error) {
	s := p.input[pos:end]
	if s[0] == '{' {
		return p.braceProperty(pos, end)
	}
	switch {
	case strings.HasPrefix(s, "[@"):
		return p.atCommand(pos, end)
	case strings.HasPrefix(s, "[`"):
		return p.verbatimInline(pos, end, KindCode, "`]")
	case strings.HasPrefix(s, "[$"):
		return p.verbatimInline(pos, end, KindMath, "$]")
	}
	if n, next, err := p.decoration(pos, end, enclosing); err != nil || next > pos {
		return n, next, err
	}
	return p.bracket(pos, end)
}

func (p *lineParser) atCommand(pos, end int) (*Node, int, error) {
	s := p.input[pos:end]
	if !strings.HasPrefix(s, "[@img") || (len(s) > 5 && s[5] != ' ' && s[5] != '\t' && s[5] != ']') {
		name := s[2:]
		if i := strings.IndexAny(name, " \t]"); i >= 0 {
			name = name[:i]
		}
		return nil, pos, &strictError{msg: "command [@" + name + "] must stand alone on its line"}
	}
	close := strings.IndexByte(s, ']')
	if close < 0 {
		return nil, pos, &strictError{msg: "unterminated image"}
	}
	body := strings.TrimSpace(s[5:close])
	src, alt, ok := imageParts(body)
	if !ok {
		return nil, pos, &strictError{msg: "image requires a path"}
	}
	n := p.node(KindImage, pos, pos+close+1)
	n.Src, n.Alt = src, alt
	return n, pos + close + 1, nil
}

// imageParts accepts `path`, `"alt" path` and `path "alt"`.
func imageParts(body string) (src, alt string, ok bool) {
	if body == "" {
		return "", "", false
	}
	if body[0] == '"' {
		i := strings.IndexByte(body[1:], '"')
		if i < 0 {
			return "", "", false
		}
		alt = body[1 : i+1]
		src = strings.TrimSpace(body[i+2:])
		return src, alt, src != ""
	}
	if strings.HasSuffix(body, `"`) {
		i := strings.LastIndexByte(body[:len(body)-1], '"')
		if i > 0 {
			return strings.TrimSpace(body[:i]), body[i+1 : len(body)-1], true
		}
	}
	if strings.ContainsAny(body, " \t") {
		return "", "", false
	}
	return body, "", true
}

func (p *lineParser) verbatimInline(pos, end int, kind Kind, closer string) (*Node, int, error) {
	s := p.input[pos+2 : end]
	i := strings.Index(s, closer)
	if i < 0 {
		return nil, pos, &strictError{msg: "unterminated inline " + strings.ToLower(kind.String())}
	}
	inner := Span{Start: pos + 2, End: pos + 2 + i}
	if inner.Len() > 0 && p.input[inner.Start] == ' ' {
		inner.Start++
	}
	if inner.Len() > 0 && p.input[inner.End-1] == ' ' {
		inner.End--
	}
	stop := pos + 2 + i + len(closer)
	n := p.node(kind, pos, stop)
	n.Inline = true
	n.Contents = []*Node{p.text(inner.Start, inner.End)}
	return n, stop, nil
}

func (p *lineParser) decoration(pos, end int, enclosing Decoration) (*Node, int, error) {
	var d Decoration
	i := pos + 1
loop:
	for ; i < end; i++ {
		switch p.input[i] {
		case '*':
			d.Bold = true
			d.Size++
		case '/':
			d.Italic = true
		case '_':
			d.Underline = true
		case '-':
			d.Deleted = true
		default:
			break loop
		}
	}
	if i == pos+1 || i >= end || p.input[i] != ' ' || d.overlaps(enclosing) {
		return nil, pos, nil
	}
	contents, closeAt, err := p.inline(i+1, end, enclosing.merge(d), true)
	if errors.Is(err, errUnclosed) {
		return nil, pos, nil
	}
	if err != nil {
		return nil, pos, err
	}
	n := p.node(KindDecoration, pos, closeAt+1)
	n.Style = d
	n.Contents = contents
	return n, closeAt + 1, nil
}

// bracket handles wiki links, URL links, mail links and embeds, all of
// which are a single bracket pair with no nested brackets.
func (p *lineParser) bracket(pos, end int) (*Node, int, error) {
	s := p.input[pos+1 : end]
	close := strings.IndexByte(s, ']')
	if close <= 0 {
		return nil, pos, nil
	}
	body := s[:close]
	if strings.ContainsRune(body, '[') {
		return nil, pos, nil
	}
	stop := pos + close + 2

	if link, title, ok := splitURL(body); ok {
		kind := KindLink
		if embeddable(link) {
			kind = KindEmbed
		}
		n := p.node(kind, pos, stop)
		n.URL, n.Title = link, title
		return n, stop, nil
	}
	if addr, title, ok := splitMail(body); ok {
		n := p.node(KindLink, pos, stop)
		n.URL, n.Title = addr, title
		return n, stop, nil
	}

	if strings.TrimSpace(body) != body || strings.ContainsAny(body[:1], "@`$") || decorated(body) {
		return nil, pos, nil
	}
	target, anchor := body, ""
	if i := strings.LastIndexByte(body, '#'); i >= 0 {
		target, anchor = body[:i], body[i+1:]
		if anchor == "" {
			return nil, pos, nil
		}
	}
	n := p.node(KindWikiLink, pos, stop)
	n.Target, n.Anchor = target, anchor
	return n, stop, nil
}

// decorated reports whether body starts like decoration content, which
// happens when a same-style decoration is nested and left unrecognized.
func decorated(body string) bool {
	i := 0
	for i < len(body) && strings.IndexByte("*/_-", body[i]) >= 0 {
		i++
	}
	return i > 0 && i < len(body) && body[i] == ' '
}

func isURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "ftp://", "file://", "./", "../", "~/"} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return true
		}
	}
	return false
}

// splitURL recognizes `url`, `url title`, `title url` and `url url`.
func splitURL(body string) (link, title string, ok bool) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", "", false
	}
	first, last := fields[0], fields[len(fields)-1]
	switch {
	case isURL(first):
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), first))
		return first, rest, true
	case isURL(last):
		rest := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), last))
		return last, rest, true
	}
	return "", "", false
}

func splitMail(body string) (addr, title string, ok bool) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", "", false
	}
	pick := func(tok string) (string, bool) {
		if strings.HasPrefix(tok, "mailto:") && len(tok) > len("mailto:") {
			return tok, true
		}
		if mailRe.MatchString(tok) {
			return "mailto:" + tok, true
		}
		return "", false
	}
	if a, ok := pick(fields[0]); ok {
		return a, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0])), true
	}
	if len(fields) > 1 {
		last := fields[len(fields)-1]
		if a, ok := pick(last); ok {
			return a, strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), last)), true
		}
	}
	return "", "", false
}

func embeddable(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, h := range embedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// braceProperty consumes a `{@name ...}` property found among the inline
// contents. Unknown property names are consumed without a result.
func (p *lineParser) braceProperty(pos, end int) (*Node, int, error) {
	s := p.input[pos:end]
	if !strings.HasPrefix(s, "{@") {
		return nil, pos, nil
	}
	close := strings.IndexByte(s, '}')
	if close < 0 {
		return nil, pos, &strictError{msg: "unterminated property"}
	}
	if prop, ok := parsePropertyBody(s[2:close]); ok {
		prop.Span = Span{Start: pos, End: pos + close + 1}
		p.props = append(p.props, prop)
	}
	return nil, pos + close + 1, nil
}

// trailingProperties scans backwards from end for whitespace separated
// anchors and tasks. It returns them in source order along with the
// position where inline content stops.
func (p *lineParser) trailingProperties(start, end int) ([]Property, int) {
	var props []Property
	cut := end
	for {
		e := cut
		for e > start && isBlank(p.input[e-1]) {
			e--
		}
		if e == start {
			break
		}
		var (
			s    int
			prop Property
			ok   bool
		)
		if p.input[e-1] == '}' {
			i := strings.LastIndex(p.input[start:e], "{@")
			if i < 0 {
				break
			}
			s = start + i
			prop, ok = parsePropertyBody(p.input[s+2 : e-1])
		} else {
			s = e
			for s > start && !isBlank(p.input[s-1]) {
				s--
			}
			prop, ok = wordProperty(p.input[s:e])
		}
		if !ok || (s > start && !isBlank(p.input[s-1])) {
			break
		}
		prop.Span = Span{Start: s, End: e}
		props = append(props, prop)
		cut = s
	}
	for i, j := 0, len(props)-1; i < j; i, j = i+1, j-1 {
		props[i], props[j] = props[j], props[i]
	}
	if len(props) == 0 {
		return nil, end
	}
	return props, cut
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func wordProperty(w string) (Property, bool) {
	if len(w) > 1 && w[0] == '#' && !strings.ContainsAny(w[1:], "#[]{}") {
		return Property{Kind: PropertyAnchor, Name: w[1:]}, true
	}
	if m := shortTask.FindStringSubmatch(w); m != nil {
		status := TaskTodo
		switch m[1] {
		case "*":
			status = TaskDoing
		case "-":
			status = TaskDone
		}
		return Property{Kind: PropertyTask, Status: status, Due: ParseDeadline(m[2])}, true
	}
	return Property{}, false
}

// parsePropertyBody parses the text between `{@` and `}`.
func parsePropertyBody(body string) (Property, bool) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return Property{}, false
	}
	switch fields[0] {
	case "task":
		prop := Property{Kind: PropertyTask}
		for _, kv := range fields[1:] {
			k, v, found := strings.Cut(kv, "=")
			if !found {
				continue
			}
			switch k {
			case "status":
				prop.Status = ParseTaskStatus(v)
			case "due", "until":
				prop.Due = ParseDeadline(v)
			}
		}
		return prop, true
	case "anchor":
		if len(fields) < 2 {
			return Property{}, false
		}
		name := fields[1]
		if k, v, found := strings.Cut(name, "="); found && k == "name" {
			name = v
		}
		return Property{Kind: PropertyAnchor, Name: name}, true
	}
	return Property{}, false
}
