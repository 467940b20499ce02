// Package scopecache memoizes scope details fetched from the backend.
//
// FetchScope never fails. A failed fetch resolves to the placeholder scope and
// leaves no entry behind, so the next call retries. A successful fetch is kept
// until Reset.
package scopecache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/metrics"
	"github.com/scopenav/scopenav/internal/scopes"
)

const defaultFetchTimeout = 30 * time.Second

// Fetcher loads one scope from the backend.
type Fetcher interface {
	FetchScope(ctx context.Context, name string) (scopes.Scope, error)
}

type Cache struct {
	fetcher Fetcher
	logger  *slog.Logger
	timeout time.Duration

	flights singleflight.Group

	mu         sync.Mutex
	scopes     map[string]scopes.Scope
	generation uint64

	prefetches sync.WaitGroup
}

type Options struct {
	Logger *slog.Logger
	// FetchTimeout bounds a shared fetch. It runs detached from the caller's
	// context so that one waiter giving up does not fail the others.
	FetchTimeout time.Duration
}

func New(fetcher Fetcher, opts Options) *Cache {
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Cache{
		fetcher: fetcher,
		logger:  logging.Component(opts.Logger, "scope_cache"),
		timeout: timeout,
		scopes:  make(map[string]scopes.Scope),
	}
}

// FetchScope returns the scope called name. Concurrent calls for the same name
// share one backend request. If ctx ends first the placeholder is returned and
// the shared request keeps running for the other callers.
func (c *Cache) FetchScope(ctx context.Context, name string) scopes.Scope {
	if s, ok := c.lookup(name); ok {
		metrics.ScopeCacheLookupsTotal.WithLabelValues("hit").Inc()
		return s
	}

	ch := c.flights.DoChan(name, func() (any, error) {
		return c.fetch(ctx, name), nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.ScopeCacheLookupsTotal.WithLabelValues("shared").Inc()
		} else {
			metrics.ScopeCacheLookupsTotal.WithLabelValues("miss").Inc()
		}
		return res.Val.(scopes.Scope)
	case <-ctx.Done():
		return scopes.BasicScope(name)
	}
}

// Prefetch warms the cache for name in the background.
func (c *Cache) Prefetch(name string) {
	c.prefetches.Add(1)
	go func() {
		defer c.prefetches.Done()
		c.FetchScope(context.Background(), name)
	}()
}

// Wait blocks until every Prefetch started so far has finished.
func (c *Cache) Wait() {
	c.prefetches.Wait()
}

// Reset drops every cached scope. Fetches still in flight finish but are not stored.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes = make(map[string]scopes.Scope)
	c.generation++
}

// Len returns the number of cached scopes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scopes)
}

func (c *Cache) lookup(name string) (scopes.Scope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopes[name]
	return s, ok
}

func (c *Cache) fetch(ctx context.Context, name string) scopes.Scope {
	// A flight that started right after another one stored its result.
	if s, ok := c.lookup(name); ok {
		return s
	}

	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	basic := scopes.BasicScope(name)
	server, err := c.fetcher.FetchScope(fetchCtx, name)
	if err != nil {
		c.logger.Warn("scope fetch failed, using placeholder", "operation", "fetch_scope", "scope", name, "err", err)
		metrics.DegradedFetchesTotal.WithLabelValues("fetch_scope").Inc()
		metrics.ScopeCacheEvictionsTotal.Inc()
		return basic
	}

	scope := basic.Merge(server)
	c.mu.Lock()
	if c.generation == generation {
		c.scopes[name] = scope
	}
	c.mu.Unlock()
	return scope
}
