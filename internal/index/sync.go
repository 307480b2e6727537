package index

import (
	"log/slog"

	"github.com/starford/patto/internal/syntax"
	"github.com/starford/patto/internal/workspace"
)

// Sync brings the index in line with the repository:
//   - new/changed documents are written
//   - rows for documents no longer in the repository are deleted
func Sync(db NoteIndex, repo *workspace.Repository, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	live := make(map[string]struct{})
	for doc := range repo.All() {
		live[doc.URI] = struct{}{}
		if checksums[doc.URI] == doc.Checksum {
			continue
		}
		if err := IndexDocument(db, doc); err != nil {
			logger.Warn("sync: index failed", slog.String("uri", doc.URI), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("uri", doc.URI))
		}
	}

	for uri := range checksums {
		if _, ok := live[uri]; ok {
			continue
		}
		if err := db.DeleteNote(uri); err != nil {
			logger.Warn("sync: delete failed", slog.String("uri", uri), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("uri", uri))
		}
	}
	return nil
}

// IndexDocument writes one document's rows.
func IndexDocument(db NoteIndex, doc *workspace.Document) error {
	links := make([]LinkRow, 0, len(doc.Links))
	for _, l := range doc.Links {
		links = append(links, LinkRow{Target: l.Target, Anchor: l.Anchor, Row: l.Row})
	}
	tasks := make([]TaskRow, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		dated := t.Due.Kind == syntax.DeadlineDate || t.Due.Kind == syntax.DeadlineDateTime
		tasks = append(tasks, TaskRow{
			Row:    t.Row,
			Text:   t.Text,
			Status: t.Status.String(),
			Due:    t.Due.String(),
			Dated:  dated,
		})
	}
	row := NoteRow{
		URI:       doc.URI,
		Name:      doc.Name,
		Checksum:  doc.Checksum,
		UpdatedAt: doc.ModTime,
	}
	return db.UpsertNote(row, doc.Text, links, tasks)
}
