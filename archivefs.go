// Package archivefs exposes the contents of a compressed archive as a
// virtual, read-only, hierarchical filesystem addressable through URIs.
//
// A frozen snapshot (zip, tar, or cpio) stays on disk as a single file; a
// Provider lets the host stat, list, and read paths inside it without
// extraction:
//
//	p := archivefs.New()
//	defer p.Close()
//	data, err := p.ReadFile(ctx, "archive:///snapshots/project.zip#src/main.c")
//
// URIs have the form <scheme>://<archive-filesystem-path>#<path-inside-archive>.
// The fragment is matched against both the bare inner path and the legacy
// "src_archive"-prefixed layout, so requests written against either historical
// snapshot layout keep resolving.
//
// Archive indexes are built once and held in a bounded deduplicating cache
// (package memo), so concurrent requests fanning out against one archive
// trigger exactly one parse. The snapshot is immutable, so every mutating
// capability fails with ErrReadOnly.
package archivefs

import (
	"errors"

	"github.com/coldview/archivefs/entry"
	"github.com/coldview/archivefs/resolve"
)

// Re-exports from resolve for hosts that only import the root package.
type (
	// URI addresses a path inside an archive on the host filesystem.
	URI = resolve.URI
)

// ParseURI parses a request URI, requiring the given scheme.
var ParseURI = resolve.ParseURI

// LegacyRootDir is the directory older snapshot layouts nest content under.
const LegacyRootDir = resolve.LegacyRootDir

// DefaultScheme is the URI scheme accepted when none is configured.
const DefaultScheme = resolve.DefaultScheme

// Re-exports from entry.
type (
	// Entry is a node in the virtual tree.
	Entry = entry.Entry

	// Kind discriminates file and directory entries.
	Kind = entry.Kind
)

// Entry kind constants.
const (
	KindFile      = entry.KindFile
	KindDirectory = entry.KindDirectory
)

// Sentinel errors re-exported from resolve.
var (
	// ErrArchiveNotFound is returned when the archive path does not exist on
	// the host filesystem.
	ErrArchiveNotFound = resolve.ErrArchiveNotFound

	// ErrEntryNotFound is returned when the fragment matches neither accepted
	// addressing form within the archive.
	ErrEntryNotFound = resolve.ErrEntryNotFound

	// ErrInvalidURI is returned when a request URI cannot be parsed.
	ErrInvalidURI = resolve.ErrInvalidURI
)

// Sentinel errors specific to the provider surface.
var (
	// ErrWrongEntryType is returned when a file operation hits a directory or
	// a directory operation hits a file.
	ErrWrongEntryType = errors.New("archivefs: wrong entry type")

	// ErrReadOnly is returned by every mutating capability: the archive
	// snapshot is immutable.
	ErrReadOnly = errors.New("archivefs: read-only filesystem")
)
