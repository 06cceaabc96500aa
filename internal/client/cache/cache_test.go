package cache

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/testutil"
)

func newTestCache(t *testing.T, size int) *Cache {
	t.Helper()
	c, err := New(size, testutil.NewTestLogger(t))
	require.NoError(t, err)
	c.Reset("gen-1")
	return c
}

// countingCompute returns a ComputeFunc that counts its calls.
func countingCompute(calls *atomic.Int32, address uint64) ComputeFunc {
	return func(ctx context.Context) (*client.FunctionResult, error) {
		calls.Add(1)
		return &client.FunctionResult{Address: address, Success: true, Signature: "f()"}, nil
	}
}

func TestCache_GetOrCompute_Idempotent(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()
	var calls atomic.Int32

	first, err := c.GetOrCompute(ctx, 0x1000, countingCompute(&calls, 0x1000))
	require.NoError(t, err)
	second, err := c.GetOrCompute(ctx, 0x1000, countingCompute(&calls, 0x1000))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Computes)
}

func TestCache_Reset_InvalidatesAll(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()
	var calls atomic.Int32

	addrs := []uint64{0x1000, 0x2000, 0x3000}
	for _, a := range addrs {
		_, err := c.GetOrCompute(ctx, a, countingCompute(&calls, a))
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	c.Reset("gen-2")

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "gen-2", c.Generation())
	for _, a := range addrs {
		_, ok := c.Get(a)
		assert.False(t, ok)
	}

	_, err := c.GetOrCompute(ctx, 0x1000, countingCompute(&calls, 0x1000))
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestCache_ConcurrentSingleFlight(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	const workers = 16
	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(ctx context.Context) (*client.FunctionResult, error) {
		calls.Add(1)
		<-release
		return &client.FunctionResult{Address: 0x4000, Success: true}, nil
	}

	var wg sync.WaitGroup
	results := make([]*client.FunctionResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.GetOrCompute(ctx, 0x4000, compute)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool {
		return c.Stats().Misses == workers
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, res := range results {
		assert.Same(t, results[0], res)
	}
}

func TestCache_FailuresNotCached(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()
	var calls atomic.Int32

	transportErr := func(ctx context.Context) (*client.FunctionResult, error) {
		calls.Add(1)
		return nil, stderrors.New("connection reset")
	}
	analysisFailure := func(ctx context.Context) (*client.FunctionResult, error) {
		calls.Add(1)
		return &client.FunctionResult{Address: 0x10, ErrorMessage: "bad"}, stderrors.New("bad")
	}

	_, err := c.GetOrCompute(ctx, 0x10, transportErr)
	require.Error(t, err)
	res, err := c.GetOrCompute(ctx, 0x10, analysisFailure)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_SupersededResultNotStored(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	compute := func(ctx context.Context) (*client.FunctionResult, error) {
		c.Reset("gen-2")
		return &client.FunctionResult{Address: 0x20, Success: true}, nil
	}

	res, err := c.GetOrCompute(ctx, 0x20, compute)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, c.Len())
}

func TestCache_StaleFlightRecomputed(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (*client.FunctionResult, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return &client.FunctionResult{Address: 0x40, Success: true}, nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.GetOrCompute(ctx, 0x40, compute)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Reset("gen-2")
	go func() {
		defer wg.Done()
		_, err := c.GetOrCompute(ctx, 0x40, compute)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return c.Stats().Misses == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	// The second caller wanted gen-2 and could not use the gen-1 flight.
	assert.Equal(t, int32(2), calls.Load())
	_, ok := c.Get(0x40)
	assert.True(t, ok)
}

func TestCache_BarrierSharesFlightAcrossReset(t *testing.T) {
	var rw sync.RWMutex
	c, err := New(0, testutil.NewTestLogger(t), WithBarrier(rw.RLocker()))
	require.NoError(t, err)
	c.Reset("gen-1")
	ctx := context.Background()

	var calls atomic.Int32
	compute := countingCompute(&calls, 0x50)

	// A loader holds the write side while it swaps binaries.
	rw.Lock()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.GetOrCompute(ctx, 0x50, compute)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return c.Stats().Misses == 1 }, time.Second, time.Millisecond)

	c.Reset("gen-2")
	go func() {
		defer wg.Done()
		_, err := c.GetOrCompute(ctx, 0x50, compute)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return c.Stats().Misses == 2 }, time.Second, time.Millisecond)
	rw.Unlock()
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	_, ok := c.Get(0x50)
	assert.True(t, ok)
}

func TestCache_WaiterCancellation(t *testing.T) {
	c := newTestCache(t, 0)
	release := make(chan struct{})
	started := make(chan struct{})

	compute := func(ctx context.Context) (*client.FunctionResult, error) {
		close(started)
		<-release
		return &client.FunctionResult{Address: 0x30, Success: true}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, 0x30, compute)
		errCh <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The abandoned compute still completes and populates the cache.
	close(release)
	require.Eventually(t, func() bool {
		_, ok := c.Get(0x30)
		return ok
	}, time.Second, time.Millisecond)
}

func TestCache_Bounded(t *testing.T) {
	c := newTestCache(t, 2)
	ctx := context.Background()
	var calls atomic.Int32

	for _, a := range []uint64{1, 2, 3} {
		_, err := c.GetOrCompute(ctx, a, countingCompute(&calls, a))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(1)
	assert.False(t, ok)
}
