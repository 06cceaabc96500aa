// Package cache memoises decompilation results for one loaded binary.
//
// Entries are tagged with the generation of the engine session they were
// computed against. Reset switches to a new generation and drops every
// entry; results still in flight for an older generation are returned to
// their callers but never stored.
package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/constants"
)

// ComputeFunc produces the result for one address, typically by calling the
// engine. It is run at most once per address at a time.
type ComputeFunc func(ctx context.Context) (*client.FunctionResult, error)

// Option configures a Cache.
type Option func(*Cache)

// WithBarrier makes every compute hold l. Pass the read side of the lock a
// loader holds while it swaps binaries and calls Reset, so the generation a
// result is tagged with is the one the engine call actually ran against.
func WithBarrier(l sync.Locker) Option {
	return func(c *Cache) {
		c.barrier = l
	}
}

type entry struct {
	generation string
	result     *client.FunctionResult
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries  int
	Hits     uint64
	Misses   uint64
	Computes uint64
}

// Cache is a bounded, generation-tagged result cache.
type Cache struct {
	mu         sync.Mutex
	generation string
	entries    *lru.Cache[uint64, entry]
	hits       uint64
	misses     uint64
	computes   uint64

	group   singleflight.Group
	barrier sync.Locker
	logger  zerolog.Logger
}

// flight is the outcome of one shared compute.
type flight struct {
	result     *client.FunctionResult
	generation string
}

// New creates a cache holding at most size results. A size below one uses
// the default.
func New(size int, logger zerolog.Logger, opts ...Option) (*Cache, error) {
	if size < 1 {
		size = constants.DefaultCacheSize
	}
	entries, err := lru.New[uint64, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	c := &Cache{
		entries: entries,
		logger:  logger.With().Str("component", "result-cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generation returns the session identity entries are currently tagged with.
func (c *Cache) Generation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Reset drops every entry and tags future entries with generation.
func (c *Cache) Reset(generation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := c.entries.Len()
	c.entries.Purge()
	c.generation = generation

	c.logger.Debug().
		Str("generation", generation).
		Int("dropped", dropped).
		Msg("Result cache reset")
}

// Get returns the cached result for address, if any.
func (c *Cache) Get(address uint64) (*client.FunctionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(address)
}

func (c *Cache) lookupLocked(address uint64) (*client.FunctionResult, bool) {
	e, ok := c.entries.Get(address)
	if !ok || e.generation != c.generation {
		return nil, false
	}
	return e.result, true
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:  c.entries.Len(),
		Hits:     c.hits,
		Misses:   c.misses,
		Computes: c.computes,
	}
}

// GetOrCompute returns the cached result for address or runs compute to
// produce it. Concurrent callers for the same address share one compute.
// A caller that joined a compute made for an older generation computes
// again. A caller whose ctx ends stops waiting; the shared compute keeps
// running for the others. Failed results are returned but not stored.
func (c *Cache) GetOrCompute(ctx context.Context, address uint64, compute ComputeFunc) (*client.FunctionResult, error) {
	c.mu.Lock()
	if res, ok := c.lookupLocked(address); ok {
		c.hits++
		c.mu.Unlock()
		return res, nil
	}
	c.misses++
	want := c.generation
	c.mu.Unlock()

	computeCtx := context.WithoutCancel(ctx)
	for {
		ch := c.group.DoChan(fmt.Sprintf("%x", address), func() (any, error) {
			return c.run(computeCtx, address, compute)
		})

		var r singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r = <-ch:
		}

		f, _ := r.Val.(flight)
		if f.generation != want && want == c.Generation() {
			continue
		}
		return f.result, r.Err
	}
}

// run performs one shared compute for address.
func (c *Cache) run(ctx context.Context, address uint64, compute ComputeFunc) (flight, error) {
	if c.barrier != nil {
		c.barrier.Lock()
		defer c.barrier.Unlock()
	}

	c.mu.Lock()
	generation := c.generation
	if res, ok := c.lookupLocked(address); ok {
		c.mu.Unlock()
		return flight{result: res, generation: generation}, nil
	}
	c.computes++
	c.mu.Unlock()

	res, err := compute(ctx)
	f := flight{result: res, generation: generation}
	if err != nil || res == nil || !res.Success {
		return f, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		c.logger.Debug().
			Str("address", fmt.Sprintf("%#x", address)).
			Str("generation", generation).
			Msg("Discarding result computed for superseded session")
		return f, nil
	}
	c.entries.Add(address, entry{generation: generation, result: res})
	return f, nil
}
