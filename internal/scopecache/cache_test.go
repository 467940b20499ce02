package scopecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/scopes"
)

type fakeFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
}

func (f *fakeFetcher) FetchScope(ctx context.Context, name string) (scopes.Scope, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return scopes.Scope{}, ctx.Err()
		}
	}
	if f.fail.Load() {
		return scopes.Scope{}, errors.New("backend down")
	}
	return scopes.Scope{
		Metadata: scopes.ObjectMeta{Name: name},
		Spec: scopes.ScopeSpec{
			Title:   "Title " + name,
			Filters: []scopes.ScopeFilter{{Key: "env", Value: name, Operator: scopes.FilterOperatorEquals}},
		},
	}, nil
}

func newCache(f Fetcher) *Cache {
	return New(f, Options{Logger: logging.Discard(), FetchTimeout: time.Second})
}

func TestFetchScopeConcurrentCallsShareOneRequest(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{release: make(chan struct{})}
	cache := newCache(f)

	var wg sync.WaitGroup
	results := make([]scopes.Scope, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = cache.FetchScope(context.Background(), "prod")
		}()
	}
	// Give both callers time to join the flight before it completes.
	deadline := time.Now().Add(time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Fatalf("backend calls = %d, want 1", got)
	}
	if results[0].Spec.Title != "Title prod" || results[1].Spec.Title != results[0].Spec.Title {
		t.Fatalf("results differ: %#v vs %#v", results[0], results[1])
	}

	cache.FetchScope(context.Background(), "prod")
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("cached lookup reached backend, calls = %d", got)
	}
}

func TestFetchScopeFailureEvictsAndRetries(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	f.fail.Store(true)
	cache := newCache(f)

	got := cache.FetchScope(context.Background(), "x")
	if got.Metadata.Name != "x" || got.Spec.Title != "x" || got.Spec.Filters == nil {
		t.Fatalf("placeholder = %#v, want basic scope", got)
	}
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d, want failed entry evicted", cache.Len())
	}

	f.fail.Store(false)
	got = cache.FetchScope(context.Background(), "x")
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("backend calls = %d, want 2", got)
	}
	if got.Spec.Title != "Title x" {
		t.Fatalf("retry result = %#v", got)
	}
}

func TestFetchScopeMergesOverBasic(t *testing.T) {
	t.Parallel()

	cache := newCache(fetcherFunc(func(ctx context.Context, name string) (scopes.Scope, error) {
		return scopes.Scope{Spec: scopes.ScopeSpec{Type: "team"}}, nil
	}))

	got := cache.FetchScope(context.Background(), "a")
	if got.Metadata.Name != "a" || got.Spec.Title != "a" || got.Spec.Type != "team" {
		t.Fatalf("merged scope = %#v", got)
	}
	if got.Spec.Filters == nil {
		t.Fatal("Filters is nil, want empty slice")
	}
}

func TestFetchScopeCallerCancellationReturnsPlaceholder(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{release: make(chan struct{})}
	cache := newCache(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan scopes.Scope, 1)
	go func() { done <- cache.FetchScope(ctx, "slow") }()
	cancel()

	got := <-done
	if got.Spec.Title != "slow" {
		t.Fatalf("cancelled caller got %#v, want placeholder", got)
	}

	// The shared fetch keeps running and still fills the cache.
	close(f.release)
	if full := cache.FetchScope(context.Background(), "slow"); full.Spec.Title != "Title slow" {
		t.Fatalf("after release got %#v", full)
	}
}

func TestPrefetchAndReset(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	cache := newCache(f)

	cache.Prefetch("a")
	cache.Prefetch("b")
	cache.Wait()
	if cache.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cache.Len())
	}

	cache.Reset()
	if cache.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", cache.Len())
	}
	cache.FetchScope(context.Background(), "a")
	if got := f.calls.Load(); got != 3 {
		t.Fatalf("backend calls = %d, want 3", got)
	}
}

type fetcherFunc func(ctx context.Context, name string) (scopes.Scope, error)

func (f fetcherFunc) FetchScope(ctx context.Context, name string) (scopes.Scope, error) {
	return f(ctx, name)
}
