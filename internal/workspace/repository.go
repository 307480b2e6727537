// Package workspace keeps one parsed Document per note and the link graph
// between them. Reads are lock free; writes to one document are serialized
// while different documents update in parallel.
package workspace

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/starford/patto/internal/notify"
	"github.com/starford/patto/internal/storage"
	"github.com/starford/patto/internal/syntax"
)

// ParseResult is what Upsert reports about the new document state.
type ParseResult struct {
	URI         string
	Name        string
	Version     int64
	Tree        *syntax.Tree
	Diagnostics []syntax.Diagnostic
	Links       []Link
	Anchors     []Anchor
	Tasks       []Task
	// SurfaceChanged is set when the note's name, anchors or outgoing
	// targets differ from the previous version.
	SurfaceChanged bool
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithBroker publishes change events to b instead of a private broker.
func WithBroker(b *notify.Broker) Option {
	return func(r *Repository) { r.broker = b }
}

// WithScanParallelism bounds how many files a rescan parses at once.
func WithScanParallelism(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// Repository owns the workspace documents and their link graph.
type Repository struct {
	store       storage.Provider
	root        string
	ext         string
	logger      *slog.Logger
	broker      *notify.Broker
	ownBroker   bool
	parallelism int

	docs  sync.Map // uri -> *Document
	names sync.Map // note name -> uri
	locks [docLockStripes]sync.Mutex // writers to one uri, striped by hash
	graph *graph

	seq atomic.Uint64

	scanMu     sync.Mutex
	scanGen    uint64
	scanCancel context.CancelFunc
}

// New creates a repository over the notes in store.
func New(store storage.Provider, opts ...Option) *Repository {
	r := &Repository{
		store:       store,
		root:        store.Root(),
		ext:         store.Ext(),
		logger:      slog.Default(),
		parallelism: 8,
		graph:       newGraph(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.broker == nil {
		r.broker = notify.NewBroker(64, 2*time.Second)
		r.ownBroker = true
	}
	return r
}

// Close releases the private broker, if any.
func (r *Repository) Close() {
	r.scanMu.Lock()
	if r.scanCancel != nil {
		r.scanCancel()
	}
	r.scanMu.Unlock()
	if r.ownBroker {
		r.broker.Close()
	}
}

// Root returns the workspace directory.
func (r *Repository) Root() string { return r.root }

// Subscribe registers a change listener.
func (r *Repository) Subscribe() *notify.Subscription { return r.broker.Subscribe() }

// Unsubscribe removes a change listener.
func (r *Repository) Unsubscribe(s *notify.Subscription) { r.broker.Unsubscribe(s) }

// URIFor returns the URI of a path relative to the workspace root.
func (r *Repository) URIFor(rel string) string {
	return URIFromPath(filepath.Join(r.root, filepath.FromSlash(rel)))
}

// Get returns the current document for uri.
func (r *Repository) Get(uri string) (*Document, bool) {
	v, ok := r.docs.Load(uri)
	if !ok {
		return nil, false
	}
	return v.(*Document), true
}

// GetByName returns the document a link target resolves to.
func (r *Repository) GetByName(name string) (*Document, bool) {
	v, ok := r.names.Load(name)
	if !ok {
		return nil, false
	}
	return r.Get(v.(string))
}

// All iterates over every document in no particular order.
func (r *Repository) All() iter.Seq[*Document] {
	return func(yield func(*Document) bool) {
		r.docs.Range(func(_, v any) bool {
			return yield(v.(*Document))
		})
	}
}

// Len returns the number of documents.
func (r *Repository) Len() int {
	n := 0
	r.docs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Upsert parses text as the new content of uri and swaps it in.
func (r *Repository) Upsert(uri, text string) (*ParseResult, error) {
	path, err := PathFromURI(uri)
	if err != nil {
		return nil, fmt.Errorf("workspace: upsert: %w", err)
	}
	doc := newDocument(uri, path, noteName(r.root, r.ext, path), text)
	res, _ := r.commit(doc, nil)
	return res, nil
}

// UpsertFile reads a note from disk, by path relative to the root, and
// swaps it in. A read failure leaves the previous document untouched.
func (r *Repository) UpsertFile(ctx context.Context, rel string) (*ParseResult, error) {
	res, _, err := r.loadFile(ctx, rel, nil)
	return res, err
}

func (r *Repository) loadFile(ctx context.Context, rel string, scan *scanStamp) (*ParseResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := r.store.Read(rel)
	if err != nil {
		return nil, false, fmt.Errorf("workspace: read %s: %w", rel, err)
	}
	abs := filepath.Join(r.root, filepath.FromSlash(rel))
	doc := newDocument(URIFromPath(abs), abs, noteName(r.root, r.ext, abs), string(data))
	if info, err := os.Stat(abs); err == nil {
		doc.ModTime = info.ModTime()
	}
	doc.onDisk = true
	res, applied := r.commit(doc, scan)
	return res, applied, nil
}

// Remove drops uri and its outgoing edges. It reports whether a document
// was present.
func (r *Repository) Remove(uri string) bool {
	return r.removeIf(uri, func(*Document) bool { return true })
}

// removeIf removes uri if drop, evaluated under the document lock, agrees.
func (r *Repository) removeIf(uri string, drop func(*Document) bool) bool {
	mu := r.lockFor(uri)
	mu.Lock()
	defer mu.Unlock()

	v, ok := r.docs.Load(uri)
	if !ok || !drop(v.(*Document)) {
		return false
	}
	r.docs.Delete(uri)
	prev := v.(*Document)
	r.names.CompareAndDelete(prev.Name, uri)
	_, removed := r.graph.replace(uri, prev.Targets(), nil)
	r.seq.Add(1)

	r.logger.Debug("workspace: removed", slog.String("uri", uri))
	r.publish(notify.DocumentRemoved, uri, prev.Version)
	r.notifyTargets(removed)
	return true
}

// RemovePath removes the note at a path relative to the root.
func (r *Repository) RemovePath(rel string) bool {
	return r.Remove(r.URIFor(rel))
}

// commit installs next unless a scan stamp rejects it. The per-URI lock
// serializes writers to one document; the swap itself is a single store.
func (r *Repository) commit(next *Document, scan *scanStamp) (*ParseResult, bool) {
	mu := r.lockFor(next.URI)
	mu.Lock()
	defer mu.Unlock()

	var prev *Document
	if v, ok := r.docs.Load(next.URI); ok {
		prev = v.(*Document)
	}
	if scan != nil && !scan.accepts(prev) {
		return nil, false
	}

	next.Version = 1
	next.CreatedAt = time.Now()
	if prev != nil {
		next.Version = prev.Version + 1
		next.CreatedAt = prev.CreatedAt
	}
	if next.ModTime.IsZero() {
		next.ModTime = time.Now()
	}
	next.seq = r.seq.Add(1)
	if scan != nil {
		next.scanGen = scan.gen
	}

	r.docs.Store(next.URI, next)
	r.names.Store(next.Name, next.URI)

	var prevTargets []string
	if prev != nil {
		prevTargets = prev.Targets()
	}
	added, removed := r.graph.replace(next.URI, prevTargets, next.Targets())

	surface := prev == nil || prev.Name != next.Name ||
		!sameNames(prev.AnchorNames(), next.AnchorNames()) ||
		len(added)+len(removed) > 0

	typ := notify.DocumentUpdated
	if prev == nil {
		typ = notify.DocumentCreated
	}
	r.logger.Debug("workspace: upserted",
		slog.String("uri", next.URI),
		slog.Int64("version", next.Version),
		slog.Bool("surface_changed", surface))
	r.publish(typ, next.URI, next.Version)
	if surface {
		r.notifyTargets(append(added, removed...))
		if prev == nil && len(r.graph.sources(next.Name)) > 0 {
			r.publish(notify.BacklinksChanged, next.URI, next.Version)
		}
	}

	return &ParseResult{
		URI:            next.URI,
		Name:           next.Name,
		Version:        next.Version,
		Tree:           next.Tree,
		Diagnostics:    next.Diagnostics,
		Links:          next.Links,
		Anchors:        next.Anchors,
		Tasks:          next.Tasks,
		SurfaceChanged: surface,
	}, true
}

// notifyTargets tells listeners that the backlinks of each resolvable
// target changed.
func (r *Repository) notifyTargets(names []string) {
	for _, name := range names {
		if d, ok := r.GetByName(name); ok {
			r.publish(notify.BacklinksChanged, d.URI, d.Version)
		}
	}
}

func (r *Repository) publish(typ, uri string, version int64) {
	r.broker.Publish(notify.Event{Type: typ, URI: uri, Version: version})
}

const docLockStripes = 64

// lockFor returns the writer lock guarding uri. A writer never holds two
// stripes at once.
func (r *Repository) lockFor(uri string) *sync.Mutex {
	return &r.locks[xxhash.Sum64String(uri)%docLockStripes]
}

func sameNames(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}
