package index

import (
	"database/sql"
	"fmt"
	"time"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	URI       string
	Name      string
	Checksum  string
	UpdatedAt time.Time
}

// LinkRow is one outgoing wiki link.
type LinkRow struct {
	Target string
	Anchor string
	Row    int
}

// TaskRow is one task line. Dated is false for tasks without an
// interpretable due date, which sort last.
type TaskRow struct {
	URI    string
	Name   string
	Row    int
	Text   string
	Status string
	Due    string
	Dated  bool
}

// SearchResult represents one search hit.
type SearchResult struct {
	URI     string
	Name    string
	Snippet string
}

// UpsertNote replaces a note, its FTS entry, links and tasks within a
// transaction.
func (db *DB) UpsertNote(n NoteRow, body string, links []LinkRow, tasks []TaskRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (uri, name, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			name       = excluded.name,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, n.URI, n.Name, n.Checksum, body, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if err := ftsUpsert(tx, n.URI, n.Name, body); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, n.URI)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO links (source, target, anchor, row) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(n.URI, l.Target, l.Anchor, l.Row); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	_, _ = tx.Exec(`DELETE FROM tasks WHERE uri = ?`, n.URI)
	if len(tasks) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO tasks (uri, row, text, status, due, dated) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare task insert: %w", err)
		}
		defer stmt.Close()
		for _, t := range tasks {
			if _, err := stmt.Exec(n.URI, t.Row, t.Text, t.Status, t.Due, t.Dated); err != nil {
				return fmt.Errorf("index: insert task: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note with its FTS entry, links and tasks.
func (db *DB) DeleteNote(uri string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, uri)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, uri)
	_, _ = tx.Exec(`DELETE FROM tasks WHERE uri = ?`, uri)
	_, _ = tx.Exec(`DELETE FROM notes WHERE uri = ?`, uri)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(uri string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE uri = ?`, uri).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns uri -> checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT uri, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var u, cs string
		if err := rows.Scan(&u, &cs); err != nil {
			return nil, err
		}
		out[u] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the URIs of notes linking to the target note name.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Tasks lists persisted tasks, optionally filtered by status, dated ones
// first by due date.
func (db *DB) Tasks(status string) ([]TaskRow, error) {
	q := `
		SELECT t.uri, n.name, t.row, t.text, t.status, t.due, t.dated
		FROM tasks t JOIN notes n ON n.uri = t.uri`
	var args []any
	if status != "" {
		q += ` WHERE t.status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY t.dated DESC, t.due, n.name, t.row`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRow
	for rows.Next() {
		var t TaskRow
		if err := rows.Scan(&t.URI, &t.Name, &t.Row, &t.Text, &t.Status, &t.Due, &t.Dated); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.URI, &r.Name, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
