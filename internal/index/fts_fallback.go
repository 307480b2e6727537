//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Without FTS5, search runs LIKE over notes.body, so there is nothing
// extra to create or maintain.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// Search matches notes whose name or body contains every whitespace
// separated term, case-insensitively for ASCII.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	for _, t := range terms {
		like := "%" + escapeLike(t) + "%"
		where = append(where, `(name LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT uri, name, body
		FROM notes
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY name
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	res, err := scanResults(rows)
	for i := range res {
		res[i].Snippet = snippetAround(res[i].Snippet, terms[0])
	}
	return res, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// snippetAround cuts roughly 60 bytes either side of the first match of
// term in body and marks it with brackets, like the FTS5 snippet.
func snippetAround(body, term string) string {
	i := strings.Index(strings.ToLower(body), strings.ToLower(term))
	if i < 0 {
		return truncate(body, 120)
	}
	start, end := max(i-60, 0), min(i+len(term)+60, len(body))
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(body[start:i])
	b.WriteString("[" + body[i:i+len(term)] + "]")
	b.WriteString(body[i+len(term) : end])
	if end < len(body) {
		b.WriteString("...")
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
