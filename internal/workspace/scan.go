package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/patto/internal/notify"
)

// ErrScanSuperseded is returned by a rescan that a newer one cancelled.
var ErrScanSuperseded = errors.New("workspace: scan superseded")

const progressEvery = 50

// ScanStats summarizes a completed rescan.
type ScanStats struct {
	Generation uint64 `json:"generation"`
	Files      int    `json:"files"`
	Parsed     int    `json:"parsed"`
	Unchanged  int    `json:"unchanged"`
	Failed     int    `json:"failed"`
	Removed    int    `json:"removed"`
}

// scanStamp decides whether a scan result may replace the current
// document. A scan never overwrites a write that happened after it started,
// unless that write came from an older scan.
type scanStamp struct {
	gen      uint64
	startSeq uint64
}

func (s *scanStamp) accepts(cur *Document) bool {
	if cur == nil || cur.seq <= s.startSeq {
		return true
	}
	return cur.scanGen != 0 && cur.scanGen < s.gen
}

// Rescan walks the workspace root and brings every document up to date
// with disk. Starting a rescan cancels any rescan still running; results
// of the older one that land late are discarded per document.
func (r *Repository) Rescan(ctx context.Context) (ScanStats, error) {
	r.scanMu.Lock()
	if r.scanCancel != nil {
		r.scanCancel()
	}
	r.scanGen++
	gen := r.scanGen
	ctx, cancel := context.WithCancel(ctx)
	r.scanCancel = cancel
	r.scanMu.Unlock()
	defer cancel()

	stamp := &scanStamp{gen: gen, startSeq: r.seq.Load()}
	stats := ScanStats{Generation: gen}

	r.broker.Publish(notify.Event{Type: notify.ScanStarted, Data: map[string]any{"generation": gen}})
	r.logger.Info("scan: started", slog.Uint64("generation", gen), slog.String("root", r.root))

	metas, err := r.store.List("")
	if err != nil {
		return stats, fmt.Errorf("workspace: rescan: %w", err)
	}
	stats.Files = len(metas)

	var (
		seen                            sync.Map
		done, parsed, unchanged, failed atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, m := range metas {
		uri := r.URIFor(m.Path)
		seen.Store(uri, struct{}{})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if cur, ok := r.Get(uri); ok && cur.onDisk && cur.Checksum == m.Checksum {
				unchanged.Add(1)
			} else if _, applied, err := r.loadFile(gctx, m.Path, stamp); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				r.logger.Warn("scan: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			} else if applied {
				parsed.Add(1)
			}
			if n := done.Add(1); n%progressEvery == 0 || int(n) == len(metas) {
				r.broker.Publish(notify.Event{
					Type: notify.ScanProgress,
					Data: map[string]any{"generation": gen, "done": n, "total": len(metas)},
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && r.currentScan() != gen && ctx.Err() != nil {
			r.logger.Info("scan: superseded", slog.Uint64("generation", gen))
			return stats, ErrScanSuperseded
		}
		return stats, fmt.Errorf("workspace: rescan: %w", err)
	}
	stats.Parsed = int(parsed.Load())
	stats.Unchanged = int(unchanged.Load())
	stats.Failed = int(failed.Load())

	// Only the latest scan may conclude that a file is gone.
	if r.currentScan() != gen {
		return stats, ErrScanSuperseded
	}
	stale := func(d *Document) bool { return d.onDisk && d.seq <= stamp.startSeq }
	for d := range r.All() {
		if _, ok := seen.Load(d.URI); ok {
			continue
		}
		if r.removeIf(d.URI, stale) {
			stats.Removed++
		}
	}

	r.broker.Publish(notify.Event{Type: notify.ScanCompleted, Data: stats})
	r.logger.Info("scan: completed",
		slog.Uint64("generation", gen),
		slog.Int("files", stats.Files),
		slog.Int("parsed", stats.Parsed),
		slog.Int("removed", stats.Removed))
	return stats, nil
}

func (r *Repository) currentScan() uint64 {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	return r.scanGen
}
