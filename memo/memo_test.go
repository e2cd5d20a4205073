package memo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingProducer tracks how many times each key is produced.
type countingProducer struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCountingProducer() *countingProducer {
	return &countingProducer{calls: make(map[string]int)}
}

func (p *countingProducer) produce(_ context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[key]++
	return "value:" + key, nil
}

func (p *countingProducer) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

func TestGet_ProducesOnMiss(t *testing.T) {
	t.Parallel()

	p := newCountingProducer()
	c := New(4, p.produce)

	v, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, "value:k", v)
	assert.Equal(t, 1, p.count("k"))
}

func TestGet_MemoizesSuccess(t *testing.T) {
	t.Parallel()

	p := newCountingProducer()
	c := New(4, p.produce)

	first, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	second, err := c.Get(t.Context(), "k")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.count("k"), "second get must not re-invoke the producer")
}

func TestGet_SingleFlight(t *testing.T) {
	t.Parallel()

	const waiters = 16

	var calls atomic.Int32
	release := make(chan struct{})
	c := New(4, func(_ context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "shared:" + key, nil
	})

	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)
	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "k")
		}()
	}

	// Let every waiter issue its Get before the production completes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "exactly one production per in-flight key")
	for i := range waiters {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared:k", results[i])
	}
}

func TestGet_SharedFailure(t *testing.T) {
	t.Parallel()

	const waiters = 8

	produceErr := errors.New("production failed")
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(4, func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		<-release
		return "", produceErr
	})

	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), "k")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range waiters {
		assert.ErrorIs(t, errs[i], produceErr, "every waiter observes the same failure")
	}
}

func TestGet_FailureNotCached(t *testing.T) {
	t.Parallel()

	produceErr := errors.New("transient")
	var calls atomic.Int32
	c := New(4, func(_ context.Context, key string) (string, error) {
		if calls.Add(1) == 1 {
			return "", produceErr
		}
		return "ok:" + key, nil
	})

	_, err := c.Get(t.Context(), "k")
	require.ErrorIs(t, err, produceErr)
	assert.Equal(t, 0, c.Len(), "failed production must not occupy a slot")

	v, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, "ok:k", v)
	assert.Equal(t, int32(2), calls.Load(), "next get retries production from scratch")
}

func TestGet_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	p := newCountingProducer()
	c := New(2, p.produce)
	ctx := t.Context()

	// Sequential a, b, c with capacity 2 evicts a.
	for _, key := range []string{"a", "b", "c"} {
		_, err := c.Get(ctx, key)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("a"), "evicted key re-invokes the producer")

	// b was evicted by a's re-insertion; c survived as MRU at that point.
	_, err = c.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("c"))
}

func TestGet_HitPromotesToMostRecentlyUsed(t *testing.T) {
	t.Parallel()

	p := newCountingProducer()
	c := New(2, p.produce)
	ctx := t.Context()

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	_, err = c.Get(ctx, "b")
	require.NoError(t, err)

	// Touch a so b becomes the LRU.
	_, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("a"))

	_, err = c.Get(ctx, "c")
	require.NoError(t, err)

	_, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("a"), "promoted key survives eviction")

	_, err = c.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("b"), "unpromoted key was evicted")
}

func TestGet_CancelledCallerDoesNotAbortProduction(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	c := New(4, func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "done:" + key, nil
	})

	cancelCtx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var cancelledErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, cancelledErr = c.Get(cancelCtx, "k")
	}()

	var survivorVal string
	var survivorErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		survivorVal, survivorErr = c.Get(context.Background(), "k")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.ErrorIs(t, cancelledErr, context.Canceled, "abandoning caller gets its ctx error")
	require.NoError(t, survivorErr, "remaining waiter still receives the result")
	assert.Equal(t, "done:k", survivorVal)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemove(t *testing.T) {
	t.Parallel()

	p := newCountingProducer()
	c := New(4, p.produce)
	ctx := t.Context()

	_, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Remove("k")
	assert.Equal(t, 0, c.Len())

	_, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("k"))

	// Removing an absent key is a no-op.
	c.Remove("missing")
}

func TestGet_UnboundedCapacity(t *testing.T) {
	t.Parallel()

	p := newCountingProducer()
	c := New(0, p.produce)
	ctx := t.Context()

	for i := range 64 {
		_, err := c.Get(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 64, c.Len())
}

func TestGet_DistinctKeysProduceIndependently(t *testing.T) {
	t.Parallel()

	p := newCountingProducer()
	c := New(8, p.produce)

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), key)
			assert.NoError(t, err)
			assert.Equal(t, "value:"+key, v)
		}()
	}
	wg.Wait()

	for _, key := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 1, p.count(key))
	}
}
