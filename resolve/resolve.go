// Package resolve maps request URIs to entries inside archives.
//
// A Resolver parses <scheme>://<archive-path>#<inner-path> URIs, indexes the
// archive through a deduplicating cache keyed by archive path, and matches
// the inner path against the two historically accepted addressing forms.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/coldview/archivefs/archive"
	"github.com/coldview/archivefs/entry"
	"github.com/coldview/archivefs/internal/pathutil"
	"github.com/coldview/archivefs/memo"
)

// LegacyRootDir is the directory older snapshot layouts nest all content
// under. Fragments are matched both bare and prefixed with this marker, so
// requests written against either layout keep resolving.
const LegacyRootDir = "src_archive"

// DefaultCacheCapacity bounds how many archive indexes stay resident.
const DefaultCacheCapacity = 8

// Sentinel errors.
var (
	// ErrArchiveNotFound is returned when the archive path does not exist on
	// the host filesystem.
	ErrArchiveNotFound = errors.New("resolve: archive not found")

	// ErrEntryNotFound is returned when the fragment matches neither accepted
	// addressing form within the archive.
	ErrEntryNotFound = errors.New("resolve: entry not found")
)

// Resolver resolves request URIs to archive entries. Archive indexes are
// built once and reused through the cache; concurrent requests against the
// same archive share a single parse. Safe for concurrent use.
type Resolver struct {
	scheme       string
	maxFileSize  int64
	capacity     int
	logger       *slog.Logger
	archiveOpts  []archive.Option
	trees        *memo.Cache[*entry.Entry]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithScheme sets the accepted URI scheme (default "archive").
func WithScheme(scheme string) Option {
	return func(r *Resolver) {
		r.scheme = scheme
	}
}

// WithCacheCapacity bounds the number of resident archive indexes.
// A capacity of 0 or less means unbounded.
func WithCacheCapacity(n int) Option {
	return func(r *Resolver) {
		r.capacity = n
	}
}

// WithMaxFileSize limits the decompressed size of a single archive entry.
func WithMaxFileSize(limit int64) Option {
	return func(r *Resolver) {
		r.maxFileSize = limit
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		scheme:      DefaultScheme,
		maxFileSize: archive.DefaultMaxFileSize,
		capacity:    DefaultCacheCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.archiveOpts = []archive.Option{archive.WithMaxFileSize(r.maxFileSize)}
	r.trees = memo.New(r.capacity, r.index)
	return r
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Scheme returns the accepted URI scheme.
func (r *Resolver) Scheme() string {
	return r.scheme
}

// Parse parses a raw request URI against the resolver's scheme.
func (r *Resolver) Parse(raw string) (URI, error) {
	return ParseURI(raw, r.scheme)
}

// Resolve returns the entry the URI addresses.
//
// The archive must exist on the host filesystem at the time of the call
// (else ErrArchiveNotFound), even when its index is already cached. The
// index is obtained through the cache, so repeated lookups against the same
// archive reuse one parse. The fragment is matched against both the bare
// inner path and the LegacyRootDir-prefixed form, unconditionally; the bare
// form wins when both exist, and the caller is not told which form matched.
// No match fails ErrEntryNotFound.
//
// Resolution is read-only: no durable state is left beyond cache population.
func (r *Resolver) Resolve(ctx context.Context, uri URI) (*entry.Entry, error) {
	if _, err := os.Stat(uri.Archive); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, uri.Archive)
	}

	root, err := r.trees.Get(ctx, uri.Archive)
	if err != nil {
		return nil, err
	}

	frag := pathutil.Normalize(uri.Fragment)
	if e, ok := root.Lookup(frag); ok {
		return e, nil
	}
	if e, ok := root.Lookup(pathutil.Join(LegacyRootDir, frag)); ok {
		return e, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, uri.String())
}

// ResolveRaw parses and resolves a raw request URI.
func (r *Resolver) ResolveRaw(ctx context.Context, raw string) (*entry.Entry, error) {
	uri, err := r.Parse(raw)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, uri)
}

// Refresh drops the cached index for an archive so the next resolution
// re-parses it. Used after an archive file is replaced on disk.
func (r *Resolver) Refresh(archivePath string) {
	r.trees.Remove(archivePath)
}

// index is the cache producer: it confirms the archive exists, lists it,
// and builds the entry tree.
func (r *Resolver) index(_ context.Context, archivePath string) (*entry.Entry, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, archivePath)
	}

	listing, format, err := archive.List(archivePath, r.archiveOpts...)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", archivePath, err)
	}

	files := make([]entry.FileData, len(listing))
	for i, f := range listing {
		files[i] = entry.FileData{Path: f.Path, Data: f.Data}
	}
	root, err := entry.Build(files)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", archivePath, err)
	}

	r.log().Debug("indexed archive",
		"path", archivePath,
		"format", format.String(),
		"entries", len(files),
	)
	return root, nil
}
