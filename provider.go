package archivefs

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/coldview/archivefs/entry"
	"github.com/coldview/archivefs/internal/pathutil"
	"github.com/coldview/archivefs/resolve"
)

// Provider implements the read-only filesystem capability surface over
// archive URIs: Stat, ReadDir, ReadFile, Open, and Watch. Every mutating
// capability fails with ErrReadOnly.
//
// A Provider is safe for concurrent use. Requests for distinct URIs proceed
// independently; requests resolving to the same archive share one underlying
// parse through the resolver's cache.
type Provider struct {
	resolver *resolve.Resolver
	logger   *slog.Logger
	notifier *notifier

	// construction-time knobs applied when no resolver is injected
	capacity int
	delay    time.Duration
	handler  ChangeHandler

	mu       sync.Mutex
	watchers map[uint64]*Watcher
	nextID   uint64
}

// New creates a Provider. Without options it resolves "archive://" URIs with
// a default-capacity index cache and discards change batches.
func New(opts ...Option) *Provider {
	p := &Provider{
		capacity: resolve.DefaultCacheCapacity,
		delay:    DefaultDebounceDelay,
		watchers: make(map[uint64]*Watcher),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.resolver == nil {
		p.resolver = resolve.New(
			resolve.WithCacheCapacity(p.capacity),
			resolve.WithLogger(p.logger),
		)
	}
	p.notifier = newNotifier(p.delay, p.handler)
	return p
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Provider) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Close releases the provider's timer and flushes any pending change batch.
func (p *Provider) Close() error {
	p.notifier.stop()
	return nil
}

// Stat resolves the URI and returns file info: type, size, and the
// synthesized ctime/mtime (archives carry no reliable timestamps).
func (p *Provider) Stat(ctx context.Context, uri string) (fs.FileInfo, error) {
	e, parsed, err := p.resolveRaw(ctx, uri)
	if err != nil {
		return nil, err
	}
	return newInfo(e, entryName(parsed)), nil
}

// ReadDir resolves the URI and returns the directory's immediate children,
// ordered by name. Resolving to a file fails ErrWrongEntryType.
func (p *Provider) ReadDir(ctx context.Context, uri string) ([]fs.DirEntry, error) {
	e, _, err := p.resolveRaw(ctx, uri)
	if err != nil {
		return nil, err
	}

	switch e.Kind() {
	case entry.KindDirectory:
		children := e.Children()
		out := make([]fs.DirEntry, 0, len(children))
		for _, c := range children {
			out = append(out, dirEntry{newInfo(c, c.Name())})
		}
		return out, nil
	case entry.KindFile:
		return nil, &fs.PathError{Op: "readdir", Path: uri, Err: ErrWrongEntryType}
	default:
		return nil, &fs.PathError{Op: "readdir", Path: uri, Err: fs.ErrInvalid}
	}
}

// ReadFile resolves the URI and returns the raw byte content. Resolving to a
// directory fails ErrWrongEntryType. The returned slice is the caller's to
// keep; the cached tree is never aliased.
func (p *Provider) ReadFile(ctx context.Context, uri string) ([]byte, error) {
	e, _, err := p.resolveRaw(ctx, uri)
	if err != nil {
		return nil, err
	}

	switch e.Kind() {
	case entry.KindFile:
		return bytes.Clone(e.Data()), nil
	case entry.KindDirectory:
		return nil, &fs.PathError{Op: "readfile", Path: uri, Err: ErrWrongEntryType}
	default:
		return nil, &fs.PathError{Op: "readfile", Path: uri, Err: fs.ErrInvalid}
	}
}

// Open resolves the URI and returns an fs.File over the entry. File handles
// support ReadAt and Seek; directory handles support ReadDir.
func (p *Provider) Open(ctx context.Context, uri string) (fs.File, error) {
	e, parsed, err := p.resolveRaw(ctx, uri)
	if err != nil {
		return nil, err
	}

	info := newInfo(e, entryName(parsed))
	switch e.Kind() {
	case entry.KindFile:
		return &openFile{info: info, r: bytes.NewReader(e.Data())}, nil
	case entry.KindDirectory:
		return &openDir{info: info, ent: e}, nil
	default:
		return nil, &fs.PathError{Op: "open", Path: uri, Err: fs.ErrInvalid}
	}
}

// Watch registers an observer for the URI. Archive snapshots never mutate,
// so the subscription structurally never fires from content changes; it
// still must be released with Watcher.Close.
func (p *Provider) Watch(uri string) (*Watcher, error) {
	parsed, err := p.resolver.Parse(uri)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	w := &Watcher{uri: parsed, release: func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, id)
	}}
	p.watchers[id] = w
	return w, nil
}

// Refresh drops the cached index for an archive and queues a change record
// for it, so hosts re-read after replacing the archive file on disk.
func (p *Provider) Refresh(archivePath string) {
	p.resolver.Refresh(archivePath)
	uri := URI{Scheme: p.resolver.Scheme(), Archive: archivePath}
	p.notifier.queue(Change{Type: Changed, URI: uri.String()})
	p.log().Debug("refreshed archive", "path", archivePath)
}

// WriteFile always fails: the archive snapshot is immutable.
func (p *Provider) WriteFile(_ context.Context, uri string, _ []byte) error {
	return &fs.PathError{Op: "write", Path: uri, Err: ErrReadOnly}
}

// Rename always fails: the archive snapshot is immutable.
func (p *Provider) Rename(_ context.Context, oldURI, _ string) error {
	return &fs.PathError{Op: "rename", Path: oldURI, Err: ErrReadOnly}
}

// Delete always fails: the archive snapshot is immutable.
func (p *Provider) Delete(_ context.Context, uri string) error {
	return &fs.PathError{Op: "delete", Path: uri, Err: ErrReadOnly}
}

// CreateDirectory always fails: the archive snapshot is immutable.
func (p *Provider) CreateDirectory(_ context.Context, uri string) error {
	return &fs.PathError{Op: "mkdir", Path: uri, Err: ErrReadOnly}
}

// resolveRaw parses and resolves a request URI.
func (p *Provider) resolveRaw(ctx context.Context, raw string) (*entry.Entry, URI, error) {
	parsed, err := p.resolver.Parse(raw)
	if err != nil {
		return nil, URI{}, err
	}
	e, err := p.resolver.Resolve(ctx, parsed)
	if err != nil {
		return nil, URI{}, err
	}
	return e, parsed, nil
}

// entryName derives the display name for a resolved URI: the base of the
// fragment, or "." for the archive root.
func entryName(uri URI) string {
	return pathutil.Base(pathutil.Normalize(uri.Fragment))
}

// Watcher is a registered observer handle. Close releases the subscription.
type Watcher struct {
	uri     URI
	release func()
}

// URI returns the watched URI.
func (w *Watcher) URI() URI { return w.uri }

// Close releases the subscription. It is safe to call more than once.
func (w *Watcher) Close() error {
	if w.release != nil {
		w.release()
		w.release = nil
	}
	return nil
}
