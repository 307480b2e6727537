package workspace

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reconcileDelay = 200 * time.Millisecond

// Watch follows file system changes under the root until ctx is
// cancelled. Bursts of events for one path are collapsed into a single
// re-read once the path has been quiet for debounce. New directories are
// watched as they appear, and renames trigger a reconciling rescan.
func (r *Repository) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, r.root); err != nil {
		return err
	}
	r.logger.Info("watcher: started", slog.String("root", r.root), slog.Duration("debounce", debounce))

	pending := make(map[string]*time.Timer)
	fire := make(chan string, 64)
	schedule := func(abs string) {
		if t, ok := pending[abs]; ok {
			t.Reset(debounce)
			return
		}
		pending[abs] = time.AfterFunc(debounce, func() {
			select {
			case fire <- abs:
			case <-ctx.Done():
			}
		})
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			r.logger.Info("watcher: stopped")
			return nil

		case abs := <-fire:
			delete(pending, abs)
			r.syncPath(ctx, abs)

		case <-reconcileCh:
			go func() {
				if _, err := r.Rescan(ctx); err != nil && !errors.Is(err, ErrScanSuperseded) && ctx.Err() == nil {
					r.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				}
			}()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name
			if r.hidden(abs) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						r.logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
						continue
					}
					r.logger.Debug("watcher: watching new dir", slog.String("path", abs))
					_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
						if err == nil && !d.IsDir() && strings.HasSuffix(p, r.ext) {
							schedule(p)
						}
						return nil
					})
					continue
				}
			}

			if !strings.HasSuffix(abs, r.ext) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0:
				schedule(abs)
			case ev.Op&fsnotify.Rename != 0:
				// Rename arrives for the old path only; the new one shows
				// up as a Create if it stays inside a watched directory.
				schedule(abs)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// syncPath re-reads abs, or drops it when the file is gone.
func (r *Repository) syncPath(ctx context.Context, abs string) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		if r.RemovePath(rel) {
			r.logger.Debug("watcher: removed", slog.String("path", rel))
		}
		return
	}
	if _, err := r.UpsertFile(ctx, rel); err != nil {
		r.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	r.logger.Debug("watcher: indexed", slog.String("path", rel))
}

func (r *Repository) hidden(abs string) bool {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
