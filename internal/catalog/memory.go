package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/scopenav/scopenav/internal/scopes"
)

// MemoryStore serves a catalog from in-memory indexes. Replace swaps the whole
// catalog at once; readers see either the old or the new one.
type MemoryStore struct {
	mu       sync.RWMutex
	scopes   map[string]scopes.Scope
	children map[string][]scopes.ScopeNode
	bindings map[string][]scopes.ScopeDashboardBinding
}

func NewMemoryStore(c Catalog) *MemoryStore {
	m := &MemoryStore{}
	m.Replace(c)
	return m
}

// Replace installs c. The catalog is assumed to be valid.
func (m *MemoryStore) Replace(c Catalog) {
	scopeIdx := make(map[string]scopes.Scope, len(c.Scopes))
	for _, s := range c.Scopes {
		scopeIdx[s.Metadata.Name] = s
	}
	children := make(map[string][]scopes.ScopeNode)
	for _, n := range c.Nodes {
		children[n.Spec.ParentName] = append(children[n.Spec.ParentName], n)
	}
	for parent := range children {
		sortNodes(children[parent])
	}
	bindings := make(map[string][]scopes.ScopeDashboardBinding)
	for _, b := range c.Bindings {
		bindings[b.Spec.Scope] = append(bindings[b.Spec.Scope], b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes = scopeIdx
	m.children = children
	m.bindings = bindings
}

func (m *MemoryStore) ListChildNodes(ctx context.Context, parent, query string, limit int) ([]scopes.ScopeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []scopes.ScopeNode{}
	for _, n := range m.children[parent] {
		if len(out) == limit {
			break
		}
		if matchesQuery(n.Spec.Title, query) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetScope(ctx context.Context, name string) (scopes.Scope, error) {
	if err := ctx.Err(); err != nil {
		return scopes.Scope{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scopes[name]
	if !ok {
		return scopes.Scope{}, fmt.Errorf("scope %q: %w", name, ErrNotFound)
	}
	return s, nil
}

// ListBindings returns the bindings of every named scope, grouped in the order
// the names are given. Unknown names contribute nothing.
func (m *MemoryStore) ListBindings(ctx context.Context, scopeNames []string) ([]scopes.ScopeDashboardBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []scopes.ScopeDashboardBinding{}
	for _, name := range dedupe(scopeNames) {
		out = append(out, m.bindings[name]...)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultNodeLimit {
		return DefaultNodeLimit
	}
	return limit
}

// matchesQuery is a case-insensitive substring test on the node title.
func matchesQuery(title, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(query))
}

func sortNodes(nodes []scopes.ScopeNode) {
	slices.SortStableFunc(nodes, func(a, b scopes.ScopeNode) int {
		if c := strings.Compare(a.Spec.Title, b.Spec.Title); c != 0 {
			return c
		}
		return strings.Compare(a.Metadata.Name, b.Metadata.Name)
	})
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
