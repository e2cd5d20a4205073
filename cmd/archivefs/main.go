// Command archivefs browses the contents of compressed archives through
// archive:// URIs without extracting them.
//
// Usage:
//
//	archivefs stat  <uri>
//	archivefs ls    <uri>
//	archivefs cat   <uri>
//	archivefs fetch <url> <dest>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/coldview/archivefs"
	"github.com/coldview/archivefs/fetch"
	"github.com/coldview/archivefs/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("archivefs", pflag.ContinueOnError)
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	capacity := flags.Int("cache-capacity", 8, "number of archive indexes kept resident")
	minRefetch := flags.Duration("min-refetch", 0, "skip fetch when the URL was downloaded this recently")
	flags.Usage = printUsage
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	args := flags.Args()
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	p := archivefs.New(
		archivefs.WithCacheCapacity(*capacity),
		archivefs.WithLogger(logger),
	)
	defer p.Close()

	ctx := context.Background()
	switch args[0] {
	case "stat":
		if len(args) != 2 {
			return fmt.Errorf("usage: archivefs stat <uri>")
		}
		return runStat(ctx, p, args[1])
	case "ls":
		if len(args) != 2 {
			return fmt.Errorf("usage: archivefs ls <uri>")
		}
		return runList(ctx, p, args[1])
	case "cat":
		if len(args) != 2 {
			return fmt.Errorf("usage: archivefs cat <uri>")
		}
		return runCat(ctx, p, args[1])
	case "fetch":
		if len(args) != 3 {
			return fmt.Errorf("usage: archivefs fetch <url> <dest>")
		}
		return runFetch(ctx, logger, args[1], args[2], *minRefetch)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func runStat(ctx context.Context, p *archivefs.Provider, uri string) error {
	info, err := p.Stat(ctx, uri)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%d\t%s\n", info.Name(), info.Mode(), info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
	return nil
}

func runList(ctx context.Context, p *archivefs.Provider, uri string) error {
	entries, err := p.ReadDir(ctx, uri)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		fmt.Println(name)
	}
	return nil
}

func runCat(ctx context.Context, p *archivefs.Provider, uri string) error {
	data, err := p.ReadFile(ctx, uri)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runFetch(ctx context.Context, logger *slog.Logger, url, dest string, minRefetch time.Duration) error {
	doFetch := func(ctx context.Context) error {
		return fetch.Fetch(ctx, url, dest,
			fetch.WithLogger(logger),
			fetch.WithProgress(func(pr fetch.Progress) {
				if pr.MaxStep > 0 {
					fmt.Fprintf(os.Stderr, "\r%s: %d/%d", pr.Message, pr.Step, pr.MaxStep)
				}
			}),
		)
	}
	if minRefetch <= 0 {
		return doFetch(ctx)
	}

	store := stampPath()
	if err := os.MkdirAll(filepath.Dir(store), 0o755); err != nil {
		return err
	}
	limiter, err := ratelimit.New(store)
	if err != nil {
		return err
	}
	res, err := limiter.InvokeIfElapsed(ctx, url, minRefetch, doFetch)
	if err != nil {
		return err
	}
	if res == ratelimit.RateLimited {
		fmt.Fprintf(os.Stderr, "skipping %s: fetched within the last %s\n", url, minRefetch)
	}
	return nil
}

// stampPath locates the fetch timestamp store under the user cache dir,
// falling back to the temp dir when no cache dir is available.
func stampPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "archivefs", "fetch-stamps.json")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `archivefs - browse compressed archives as a read-only filesystem

Usage:
  archivefs [flags] stat  <uri>   show type, size, and times for a path
  archivefs [flags] ls    <uri>   list a directory's immediate children
  archivefs [flags] cat   <uri>   write a file's content to stdout
  archivefs [flags] fetch <url> <dest>  download an archive

Fetch flags:
      --min-refetch D     skip fetch when the URL was downloaded this recently

URIs: archive://<archive-path>#<path-inside-archive>

Flags:
  -v, --verbose           enable debug logging
      --cache-capacity N  number of archive indexes kept resident
`)
}
