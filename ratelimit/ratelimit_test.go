package ratelimit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) time() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T, clock *fakeClock) *Limiter {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), "stamps.json"), WithClock(clock.time))
	require.NoError(t, err)
	return l
}

func TestInvokeIfElapsed_FirstRunInvokes(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)

	ran := false
	res, err := l.InvokeIfElapsed(t.Context(), "update-check", time.Hour, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Invoked, res)
	assert.True(t, ran)

	last, ok := l.Last("update-check")
	require.True(t, ok)
	assert.Equal(t, clock.now, last)
}

func TestInvokeIfElapsed_RateLimitsWithinInterval(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)
	ctx := t.Context()

	_, err := l.InvokeIfElapsed(ctx, "op", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)

	clock.advance(30 * time.Minute)
	ran := false
	res, err := l.InvokeIfElapsed(ctx, "op", time.Hour, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, RateLimited, res)
	assert.False(t, ran, "gated operation must not run")
}

func TestInvokeIfElapsed_InvokesAfterInterval(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)
	ctx := t.Context()

	_, err := l.InvokeIfElapsed(ctx, "op", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)

	clock.advance(time.Hour)
	res, err := l.InvokeIfElapsed(ctx, "op", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Invoked, res)
}

func TestInvokeIfElapsed_OperationErrorStillRecorded(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)
	ctx := t.Context()

	opErr := errors.New("network down")
	res, err := l.InvokeIfElapsed(ctx, "op", time.Hour, func(context.Context) error { return opErr })
	assert.Equal(t, Invoked, res)
	require.ErrorIs(t, err, opErr)

	// A failing operation is still rate limited.
	clock.advance(time.Minute)
	res, err = l.InvokeIfElapsed(ctx, "op", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, RateLimited, res)
}

func TestInvokeIfElapsed_IndependentIdentifiers(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)
	ctx := t.Context()

	_, err := l.InvokeIfElapsed(ctx, "a", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)

	res, err := l.InvokeIfElapsed(ctx, "b", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Invoked, res, "identifiers are gated independently")
}

func TestLimiter_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stamps.json")
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}

	first, err := New(path, WithClock(clock.time))
	require.NoError(t, err)
	_, err = first.InvokeIfElapsed(t.Context(), "op", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)

	// A fresh limiter over the same store sees the recorded timestamp.
	clock.advance(10 * time.Minute)
	second, err := New(path, WithClock(clock.time))
	require.NoError(t, err)

	res, err := second.InvokeIfElapsed(t.Context(), "op", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, RateLimited, res)

	clock.advance(time.Hour)
	res, err = second.InvokeIfElapsed(t.Context(), "op", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Invoked, res)
}

func TestInvokeIfElapsed_PersistenceFailure(t *testing.T) {
	t.Parallel()

	// A store in a directory that does not exist loads cleanly (no file) but
	// cannot be written.
	path := filepath.Join(t.TempDir(), "missing-dir", "stamps.json")
	l, err := New(path)
	require.NoError(t, err)

	ran := false
	res, err := l.InvokeIfElapsed(t.Context(), "op", time.Hour, func(context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, RateLimited, res)
	assert.False(t, ran, "operation must not run when its timestamp cannot be persisted")

	_, ok := l.Last("op")
	assert.False(t, ok, "unpersisted timestamp must not linger in memory")
}

func TestNew_CorruptStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stamps.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New(path)
	require.Error(t, err)
}

func TestResult_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "invoked", Invoked.String())
	assert.Equal(t, "rate-limited", RateLimited.String())
}
