// Package entry models the contents of an archive as an immutable tree of
// files and directories.
//
// Archives list files as flat paths; directories are synthesized while the
// tree is built. Entries are never mutated after Build returns.
package entry

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/coldview/archivefs/internal/pathutil"
)

// Sentinel errors.
var (
	// ErrDuplicatePath is returned when a listing contains the same path twice.
	ErrDuplicatePath = errors.New("entry: duplicate path")

	// ErrPathConflict is returned when a path uses a file as a directory.
	ErrPathConflict = errors.New("entry: file/directory conflict")
)

// Kind discriminates the entry variants.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// FileData is one element of a flat archive listing.
type FileData struct {
	// Path is the slash-separated path inside the archive (e.g. "src/main.c").
	Path string

	// Data is the decompressed file content.
	Data []byte
}

// Entry is a node in the virtual tree: either a file with content or a
// directory with uniquely named children. The root is a directory with an
// empty name.
type Entry struct {
	name     string
	kind     Kind
	data     []byte
	ctime    time.Time
	mtime    time.Time
	children map[string]*Entry
}

// Name returns the entry's name within its parent. The root's name is "".
func (e *Entry) Name() string { return e.name }

// Kind returns the variant discriminant.
func (e *Entry) Kind() Kind { return e.kind }

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.kind == KindDirectory }

// Size returns the content length for files and 0 for directories.
func (e *Entry) Size() int64 {
	if e.kind == KindFile {
		return int64(len(e.data))
	}
	return 0
}

// Data returns the file content. Directories return nil.
// The returned slice must be treated as immutable.
func (e *Entry) Data() []byte { return e.data }

// CTime returns the synthesized creation time. Archives carry no reliable
// per-entry timestamps, so this is the time the tree was built.
func (e *Entry) CTime() time.Time { return e.ctime }

// MTime returns the synthesized modification time.
func (e *Entry) MTime() time.Time { return e.mtime }

// Child returns the named immediate child of a directory.
func (e *Entry) Child(name string) (*Entry, bool) {
	c, ok := e.children[name]
	return c, ok
}

// Children returns the immediate children of a directory, sorted by name.
// Files return nil.
func (e *Entry) Children() []*Entry {
	if e.kind != KindDirectory {
		return nil
	}
	out := make([]*Entry, 0, len(e.children))
	for _, c := range e.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Lookup walks the tree from e along the normalized slash-separated path.
// "." returns e itself.
func (e *Entry) Lookup(path string) (*Entry, bool) {
	cur := e
	for _, part := range pathutil.Split(pathutil.Normalize(path)) {
		if cur.kind != KindDirectory {
			return nil, false
		}
		next, ok := cur.children[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Walk visits every entry below e in depth-first name order, passing each
// entry's full path relative to e. The walk root itself is visited with
// path ".".
func (e *Entry) Walk(fn func(path string, ent *Entry)) {
	e.walk(".", fn)
}

func (e *Entry) walk(path string, fn func(string, *Entry)) {
	fn(path, e)
	for _, c := range e.Children() {
		c.walk(pathutil.Join(path, c.name), fn)
	}
}

// Mode returns the fs.FileMode equivalent of the entry's kind.
// The snapshot is immutable, so no write bits are ever set.
func (e *Entry) Mode() fs.FileMode {
	if e.kind == KindDirectory {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

// Build constructs an Entry tree from a flat archive listing. Intermediate
// directories are materialized as needed; names are unique within each
// directory. The ctime/mtime of every entry is now, since the container
// carries no reliable timestamps.
func Build(files []FileData) (*Entry, error) {
	now := time.Now()
	root := &Entry{
		kind:     KindDirectory,
		ctime:    now,
		mtime:    now,
		children: make(map[string]*Entry),
	}

	for _, f := range files {
		path := pathutil.Normalize(f.Path)
		parts := pathutil.Split(path)
		if len(parts) == 0 {
			continue
		}

		dir := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := dir.children[part]
			if !ok {
				next = &Entry{
					name:     part,
					kind:     KindDirectory,
					ctime:    now,
					mtime:    now,
					children: make(map[string]*Entry),
				}
				dir.children[part] = next
			}
			if next.kind != KindDirectory {
				return nil, fmt.Errorf("%w: %s", ErrPathConflict, path)
			}
			dir = next
		}

		name := parts[len(parts)-1]
		if _, ok := dir.children[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, path)
		}
		dir.children[name] = &Entry{
			name:  name,
			kind:  KindFile,
			data:  f.Data,
			ctime: now,
			mtime: now,
		}
	}

	return root, nil
}
