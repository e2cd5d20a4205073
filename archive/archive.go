// Package archive lists the file contents of compressed archive containers.
//
// Supported containers are zip (including zstd-compressed entries), tar, and
// cpio; tar and cpio streams may additionally be wrapped in gzip, zstd, or
// lz4 outer compression. The container format is detected from magic bytes,
// never from the file extension.
//
// Listing is flat: containers record files, not necessarily directories, so
// directory structure is synthesized later from the listed paths.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Sentinel errors.
var (
	// ErrUnknownFormat is returned when the file matches no supported container.
	ErrUnknownFormat = errors.New("archive: unknown format")

	// ErrEntryTooLarge is returned when a decompressed entry exceeds the
	// configured per-entry limit.
	ErrEntryTooLarge = errors.New("archive: entry too large")
)

// DefaultMaxFileSize caps the decompressed size of a single entry, guarding
// against decompression bombs. Override with WithMaxFileSize.
const DefaultMaxFileSize int64 = 1 << 30

// File is one element of a flat archive listing.
type File struct {
	// Path is the slash-separated path recorded in the container.
	Path string

	// Data is the decompressed content.
	Data []byte
}

// Format identifies the detected container format.
type Format uint8

const (
	FormatZip Format = iota
	FormatTar
	FormatCpio
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatCpio:
		return "cpio"
	default:
		return "unknown"
	}
}

// Option configures listing behavior.
type Option func(*lister)

// WithMaxFileSize limits the decompressed size of a single entry.
// A limit of 0 or less disables the limit.
func WithMaxFileSize(limit int64) Option {
	return func(l *lister) {
		l.maxFileSize = limit
	}
}

type lister struct {
	maxFileSize int64
}

// List returns the flat file listing of the archive at path. Directory and
// symlink entries inside the container are skipped; only regular files are
// listed.
func List(path string, opts ...Option) ([]File, Format, error) {
	l := &lister{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(l)
	}

	f, err := os.Open(path) //nolint:gosec // user-provided archive path is intentional
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	// Zip needs random access, so it is handled from the file directly.
	if bytes.HasPrefix(head, []byte("PK")) {
		files, err := l.listZip(path)
		return files, FormatZip, err
	}

	r, closeOuter, err := wrapDecompressor(f, head)
	if err != nil {
		return nil, 0, err
	}
	if closeOuter != nil {
		defer closeOuter()
	}

	br := bufio.NewReader(r)
	format, err := sniffStream(br)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	var files []File
	switch format {
	case FormatTar:
		files, err = l.listTar(br)
	case FormatCpio:
		files, err = l.listCpio(br)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, format, fmt.Errorf("list %s: %w", path, err)
	}
	return files, format, nil
}

// wrapDecompressor wraps r with the outer decompressor matching the magic in
// head, if any. The returned close function releases decoder resources and
// may be nil.
func wrapDecompressor(r io.Reader, head []byte) (io.Reader, func(), error) {
	switch {
	case bytes.HasPrefix(head, []byte{0x1f, 0x8b}):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case bytes.HasPrefix(head, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return dec, dec.Close, nil
	case bytes.HasPrefix(head, []byte{0x04, 0x22, 0x4d, 0x18}):
		return lz4.NewReader(r), nil, nil
	default:
		return r, nil, nil
	}
}

// sniffStream identifies tar or cpio content without consuming it.
func sniffStream(br *bufio.Reader) (Format, error) {
	head, err := br.Peek(6)
	if err != nil {
		return 0, err
	}
	// Only the newc and crc cpio variants are readable; odc ("070707") is not.
	if bytes.HasPrefix(head, []byte("070701")) ||
		bytes.HasPrefix(head, []byte("070702")) {
		return FormatCpio, nil
	}
	// Tar stores its magic at offset 257.
	block, err := br.Peek(263)
	if err != nil {
		return 0, err
	}
	if bytes.Equal(block[257:262], []byte("ustar")) {
		return FormatTar, nil
	}
	return 0, ErrUnknownFormat
}

func (l *lister) listZip(path string) ([]File, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer zr.Close()

	// Some producers compress zip entries with zstd (method 93).
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	files := make([]File, 0, len(zr.File))
	for _, zf := range zr.File {
		info := zf.FileInfo()
		if info.IsDir() || !info.Mode().IsRegular() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", zf.Name, err)
		}
		data, err := l.readEntry(rc, zf.Name)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: zf.Name, Data: data})
	}
	return files, nil
}

func (l *lister) listTar(r io.Reader) ([]File, error) {
	tr := tar.NewReader(r)
	var files []File
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := l.readEntry(tr, hdr.Name)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: hdr.Name, Data: data})
	}
}

func (l *lister) listCpio(r io.Reader) ([]File, error) {
	cr := cpio.NewReader(r)
	var files []File
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cpio: %w", err)
		}
		if !hdr.Mode.IsRegular() {
			continue
		}
		data, err := l.readEntry(cr, hdr.Name)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: hdr.Name, Data: data})
	}
}

// readEntry reads one entry's content, enforcing the per-entry size limit.
func (l *lister) readEntry(r io.Reader, name string) ([]byte, error) {
	if l.maxFileSize <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", name, err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, l.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	if int64(len(data)) > l.maxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, name)
	}
	return data, nil
}
