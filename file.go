package archivefs

import (
	"bytes"
	"io"
	"io/fs"
	"time"

	"github.com/coldview/archivefs/entry"
)

// Interface compliance.
var (
	_ fs.FileInfo    = (*fileInfo)(nil)
	_ fs.DirEntry    = dirEntry{}
	_ fs.File        = (*openFile)(nil)
	_ io.ReaderAt    = (*openFile)(nil)
	_ io.Seeker      = (*openFile)(nil)
	_ fs.ReadDirFile = (*openDir)(nil)
)

// fileInfo implements fs.FileInfo over a resolved entry.
type fileInfo struct {
	ent  *entry.Entry
	name string
}

func newInfo(e *entry.Entry, name string) *fileInfo {
	return &fileInfo{ent: e, name: name}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.ent.Size() }
func (fi *fileInfo) Mode() fs.FileMode  { return fi.ent.Mode() }
func (fi *fileInfo) ModTime() time.Time { return fi.ent.MTime() }
func (fi *fileInfo) IsDir() bool        { return fi.ent.IsDir() }
func (fi *fileInfo) Sys() any           { return nil }

// CTime returns the synthesized creation time.
func (fi *fileInfo) CTime() time.Time { return fi.ent.CTime() }

// dirEntry implements fs.DirEntry by wrapping fileInfo.
type dirEntry struct {
	info *fileInfo
}

func (de dirEntry) Name() string               { return de.info.Name() }
func (de dirEntry) IsDir() bool                { return de.info.IsDir() }
func (de dirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de dirEntry) Info() (fs.FileInfo, error) { return de.info, nil }

// openFile is an open handle on a file entry. Content lives in the cached
// index, so reads never touch the archive again.
type openFile struct {
	info *fileInfo
	r    *bytes.Reader
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *openFile) Close() error               { return nil }

func (f *openFile) ReadAt(p []byte, off int64) (int, error) {
	return f.r.ReadAt(p, off)
}

func (f *openFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

// openDir is an open handle on a directory entry.
type openDir struct {
	info    *fileInfo
	ent     *entry.Entry
	entries []fs.DirEntry
	offset  int
}

func (d *openDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *openDir) Close() error               { return nil }

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.Name(), Err: fs.ErrInvalid}
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		children := d.ent.Children()
		d.entries = make([]fs.DirEntry, 0, len(children))
		for _, c := range children {
			d.entries = append(d.entries, dirEntry{newInfo(c, c.Name())})
		}
	}

	if n <= 0 {
		out := d.entries[d.offset:]
		d.offset = len(d.entries)
		return out, nil
	}

	if d.offset >= len(d.entries) {
		return nil, io.EOF
	}
	end := d.offset + n
	if end > len(d.entries) {
		end = len(d.entries)
	}
	out := d.entries[d.offset:end]
	d.offset = end
	return out, nil
}
