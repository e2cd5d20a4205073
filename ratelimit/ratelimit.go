// Package ratelimit gates background operations on wall-clock intervals.
//
// A Limiter remembers the last time each named operation ran, persisted in a
// small JSON store so the gate survives process restarts. InvokeIfElapsed
// runs an operation only when at least the requested interval has passed
// since its previous run.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Result reports what InvokeIfElapsed did.
type Result uint8

const (
	// Invoked means the operation ran and its timestamp was recorded.
	Invoked Result = iota

	// RateLimited means the operation did not run, either because the
	// interval had not elapsed or because its timestamp could not be
	// persisted.
	RateLimited
)

func (r Result) String() string {
	switch r {
	case Invoked:
		return "invoked"
	case RateLimited:
		return "rate-limited"
	default:
		return "unknown"
	}
}

// Limiter persists last-invocation timestamps per operation identifier.
// Safe for concurrent use within one process; the store file is rewritten
// atomically on each recorded invocation.
type Limiter struct {
	path  string
	clock func() time.Time

	mu    sync.Mutex
	stamp map[string]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects the time source. Defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// New creates a Limiter backed by the JSON store at path. A missing store
// file means no operation has ever run.
func New(path string, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		path:  path,
		clock: time.Now,
		stamp: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// InvokeIfElapsed runs fn if at least min has passed since the operation id
// last ran (or if it never ran). On Invoked, fn's error is returned and the
// timestamp is recorded even when fn fails, so a failing operation is still
// rate limited. On RateLimited, fn is not called; the error is nil when the
// interval had not elapsed, and non-nil when the timestamp could not be
// persisted (nothing is recorded, so a later call retries).
func (l *Limiter) InvokeIfElapsed(ctx context.Context, id string, min time.Duration, fn func(context.Context) error) (Result, error) {
	l.mu.Lock()
	now := l.clock()
	last, ok := l.stamp[id]
	if ok && now.Sub(last) < min {
		l.mu.Unlock()
		return RateLimited, nil
	}
	l.stamp[id] = now
	saveErr := l.save()
	if saveErr != nil {
		if ok {
			l.stamp[id] = last
		} else {
			delete(l.stamp, id)
		}
		l.mu.Unlock()
		return RateLimited, fmt.Errorf("persist timestamp for %s: %w", id, saveErr)
	}
	l.mu.Unlock()

	return Invoked, fn(ctx)
}

// Last returns the recorded last-invocation time for id.
func (l *Limiter) Last(id string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.stamp[id]
	return t, ok
}

func (l *Limiter) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store %s: %w", l.path, err)
	}
	if err := json.Unmarshal(data, &l.stamp); err != nil {
		return fmt.Errorf("decode store %s: %w", l.path, err)
	}
	if l.stamp == nil {
		l.stamp = make(map[string]time.Time)
	}
	return nil
}

// save writes the store atomically. Must be called with the lock held.
func (l *Limiter) save() error {
	data, err := json.Marshal(l.stamp)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ratelimit-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
