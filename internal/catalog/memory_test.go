package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/scopenav/scopenav/internal/scopes"
)

func nodeNames(nodes []scopes.ScopeNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Metadata.Name)
	}
	return out
}

func TestMemoryStoreListChildNodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore(loadTestCatalog(t))

	roots, err := store.ListChildNodes(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("ListChildNodes() error = %v", err)
	}
	if got := nodeNames(roots); len(got) != 2 || got[0] != "applications" || got[1] != "clusters" {
		t.Fatalf("roots = %v", got)
	}

	filtered, err := store.ListChildNodes(ctx, "applications", "  VOTE ", 0)
	if err != nil {
		t.Fatalf("ListChildNodes() error = %v", err)
	}
	if got := nodeNames(filtered); len(got) != 1 || got[0] != "applications-slothVoteTracker" {
		t.Fatalf("filtered = %v", got)
	}

	limited, err := store.ListChildNodes(ctx, "clusters", "", 1)
	if err != nil {
		t.Fatalf("ListChildNodes() error = %v", err)
	}
	if got := nodeNames(limited); len(got) != 1 || got[0] != "clusters-slothClusterNorth" {
		t.Fatalf("limited = %v", got)
	}

	none, err := store.ListChildNodes(ctx, "unknown", "", 0)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("unknown parent = %v, %v; want empty non-nil list", none, err)
	}
}

func TestMemoryStoreGetScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore(loadTestCatalog(t))

	s, err := store.GetScope(ctx, "slothClusterNorth")
	if err != nil {
		t.Fatalf("GetScope() error = %v", err)
	}
	if s.Spec.Type != "cluster" || len(s.Spec.Filters) != 1 {
		t.Fatalf("scope = %#v", s)
	}

	if _, err := store.GetScope(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetScope(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListBindingsKeepsNameOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore(loadTestCatalog(t))

	got, err := store.ListBindings(ctx, []string{"slothVoteTracker", "ghost", "slothPictureFactory", "slothVoteTracker"})
	if err != nil {
		t.Fatalf("ListBindings() error = %v", err)
	}
	want := []string{"slothVoteTracker-latency", "slothPictureFactory-overview", "slothPictureFactory-latency"}
	if len(got) != len(want) {
		t.Fatalf("bindings = %#v", got)
	}
	for i, b := range got {
		if b.Metadata.Name != want[i] {
			t.Fatalf("bindings[%d] = %q, want %q", i, b.Metadata.Name, want[i])
		}
	}
}

func TestMemoryStoreReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore(loadTestCatalog(t))

	store.Replace(Catalog{})
	if _, err := store.GetScope(ctx, "slothClusterNorth"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetScope() after Replace error = %v", err)
	}
	roots, _ := store.ListChildNodes(ctx, "", "", 0)
	if len(roots) != 0 {
		t.Fatalf("roots after Replace = %v", nodeNames(roots))
	}
}

func TestMemoryStoreHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore(Catalog{})
	if _, err := store.ListChildNodes(ctx, "", "", 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("ListChildNodes() error = %v", err)
	}
}
