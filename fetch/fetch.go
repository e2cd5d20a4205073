// Package fetch downloads archive files over HTTP for the virtual filesystem
// to open.
//
// Downloads stream to a temp file and are installed with an atomic rename,
// so a partially fetched archive is never visible at the destination path.
// Progress is reported as {Step, MaxStep, Message} tuples; the consuming UI
// owns percentage translation and rendering.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// ErrDigestMismatch is returned when downloaded content does not match the
// expected digest. The destination file is left untouched.
var ErrDigestMismatch = errors.New("fetch: digest mismatch")

// progressChunk is how many downloaded bytes advance one progress step.
const progressChunk = 64 << 10

// Progress is one progress update during a byte-streaming operation.
type Progress struct {
	// Step is the number of completed steps.
	Step uint64

	// MaxStep is the total number of steps. Zero means the total is unknown.
	MaxStep uint64

	// Message describes the current activity.
	Message string
}

// ProgressFunc receives progress updates. Implementations must be safe for
// concurrent calls.
type ProgressFunc func(Progress)

// Option configures a Fetch operation.
type Option func(*fetcher)

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) Option {
	return func(f *fetcher) {
		f.client = client
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(f *fetcher) {
		f.progress = fn
	}
}

// WithDigest verifies downloaded content against the expected digest before
// installing it at the destination.
func WithDigest(d digest.Digest) Option {
	return func(f *fetcher) {
		f.digest = d
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(f *fetcher) {
		f.logger = logger
	}
}

type fetcher struct {
	client   *http.Client
	progress ProgressFunc
	digest   digest.Digest
	logger   *slog.Logger
}

func (f *fetcher) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

func (f *fetcher) report(step, maxStep uint64, msg string) {
	if f.progress != nil {
		f.progress(Progress{Step: step, MaxStep: maxStep, Message: msg})
	}
}

// Fetch downloads url to destPath. The destination's parent directory must
// exist. On any failure the destination is left as it was.
func Fetch(ctx context.Context, url, destPath string, opts ...Option) error {
	f := &fetcher{client: http.DefaultClient}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	return f.fetch(ctx, url, destPath)
}

func (f *fetcher) fetch(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	var maxStep uint64
	if resp.ContentLength > 0 {
		maxStep = steps(uint64(resp.ContentLength))
	}
	f.log().Debug("downloading archive", "url", url, "bytes", resp.ContentLength)
	f.report(0, maxStep, "downloading "+url)

	dir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(dir, ".fetch-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	verifier := f.verifier()
	body := io.Reader(resp.Body)
	if verifier != nil {
		body = io.TeeReader(body, verifier)
	}

	written, err := f.copyWithProgress(ctx, tmp, body, maxStep)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}

	if verifier != nil && !verifier.Verified() {
		return fmt.Errorf("%w: %s", ErrDigestMismatch, url)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming to destination: %w", err)
	}
	success = true

	f.report(steps(written), maxStep, "download complete")
	f.log().Debug("downloaded archive", "url", url, "dest", destPath, "bytes", written)
	return nil
}

func (f *fetcher) verifier() digest.Verifier {
	if f.digest == "" {
		return nil
	}
	return f.digest.Verifier()
}

// copyWithProgress copies src to dst, reporting one progress step per
// progressChunk bytes and honoring ctx cancellation between chunks.
func (f *fetcher) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, maxStep uint64) (uint64, error) {
	buf := make([]byte, progressChunk)
	var written uint64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += uint64(n)
			f.report(steps(written), maxStep, "downloading")
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// steps converts a byte count to progress steps, rounding up.
func steps(n uint64) uint64 {
	return (n + progressChunk - 1) / progressChunk
}
