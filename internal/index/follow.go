package index

import (
	"context"
	"log/slog"

	"github.com/starford/patto/internal/notify"
	"github.com/starford/patto/internal/workspace"
)

// Follow keeps the index current by applying repository change events
// until ctx is cancelled. Missed events are repaired by a full Sync after
// each completed scan and whenever the subscription reports drops.
func Follow(ctx context.Context, db NoteIndex, repo *workspace.Repository, logger *slog.Logger) error {
	sub := repo.Subscribe()
	defer repo.Unsubscribe(sub)

	if err := Sync(db, repo, logger); err != nil {
		logger.Warn("follow: initial sync failed", slog.String("error", err.Error()))
	}
	logger.Info("follow: started")

	var dropped int64
	for {
		select {
		case <-ctx.Done():
			logger.Info("follow: stopped")
			return nil

		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if n := sub.Dropped(); n != dropped {
				dropped = n
				logger.Warn("follow: events dropped, resyncing", slog.Int64("dropped", n))
				if err := Sync(db, repo, logger); err != nil {
					logger.Warn("follow: sync failed", slog.String("error", err.Error()))
				}
				continue
			}
			apply(db, repo, ev, logger)
		}
	}
}

func apply(db NoteIndex, repo *workspace.Repository, ev notify.Event, logger *slog.Logger) {
	switch ev.Type {
	case notify.DocumentCreated, notify.DocumentUpdated:
		doc, ok := repo.Get(ev.URI)
		if !ok {
			return
		}
		if err := IndexDocument(db, doc); err != nil {
			logger.Warn("follow: index failed", slog.String("uri", ev.URI), slog.String("error", err.Error()))
		}
	case notify.DocumentRemoved:
		if _, ok := repo.Get(ev.URI); ok {
			return
		}
		if err := db.DeleteNote(ev.URI); err != nil {
			logger.Warn("follow: delete failed", slog.String("uri", ev.URI), slog.String("error", err.Error()))
		}
	case notify.ScanCompleted:
		if err := Sync(db, repo, logger); err != nil {
			logger.Warn("follow: sync failed", slog.String("error", err.Error()))
		}
	}
}
