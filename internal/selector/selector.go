// Package selector implements the scopes selector: the lazily loaded node
// tree, the selection edited in the picker and the applied selection.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/metrics"
	"github.com/scopenav/scopenav/internal/nodetree"
	"github.com/scopenav/scopenav/internal/observable"
	"github.com/scopenav/scopenav/internal/scopes"
	scopesync "github.com/scopenav/scopenav/internal/sync"
)

const (
	machineName           = "selector"
	defaultResolveWorkers = 8
)

// ErrNotSelectable is returned when toggling a node that does not link to a scope.
var ErrNotSelectable = errors.New("node does not link to a scope")

// NodeFetcher lists the children of a scope node.
type NodeFetcher interface {
	FetchNodes(ctx context.Context, parent, query string) ([]scopes.ScopeNode, error)
}

// ScopeResolver resolves scope details. It never fails.
type ScopeResolver interface {
	FetchScope(ctx context.Context, name string) scopes.Scope
	Prefetch(name string)
}

// DashboardsFetcher loads the dashboards of an applied selection in the
// background. The returned channel is closed once the fetch has settled.
type DashboardsFetcher interface {
	StartFetch(ctx context.Context, scopeNames []string) <-chan struct{}
}

type Options struct {
	Logger *slog.Logger
	// ResolveWorkers bounds concurrent scope resolution in UpdateScopes.
	ResolveWorkers int
}

type Service struct {
	store      *observable.Store[State]
	nodes      NodeFetcher
	resolver   ScopeResolver
	dashboards DashboardsFetcher
	logger     *slog.Logger
	workers    int

	// generation and epoch are only read and written inside store update
	// functions. generation orders UpdateScopes calls; epoch changes on Reset.
	generation uint64
	epoch      uint64
}

func New(nodes NodeFetcher, resolver ScopeResolver, dashboards DashboardsFetcher, opts Options) *Service {
	workers := opts.ResolveWorkers
	if workers <= 0 {
		workers = defaultResolveWorkers
	}
	s := &Service{
		store:      observable.New(initialState()),
		nodes:      nodes,
		resolver:   resolver,
		dashboards: dashboards,
		logger:     logging.Component(opts.Logger, machineName),
		workers:    workers,
	}
	s.store.OnEmit(func() {
		metrics.StateUpdatesTotal.WithLabelValues(machineName).Inc()
	})
	return s
}

// Snapshot returns the current state.
func (s *Service) Snapshot() State {
	return s.store.Snapshot()
}

// Subscribe streams the current state and every later one. The channel
// conflates: a slow reader only sees the newest snapshot.
func (s *Service) Subscribe() (<-chan State, func()) {
	return s.store.Subscribe()
}

// UpdateNode sets the expansion and query of the node at path. The children
// are refetched when the node is expanded or its query changed. Every level of
// path above the node must already be loaded.
func (s *Service) UpdateNode(ctx context.Context, path []string, isExpanded bool, query string) error {
	var (
		lookupErr error
		fetch     bool
		name      string
		epoch     uint64
	)
	s.store.TryUpdate(func(st State) (State, bool) {
		epoch = s.epoch
		id, err := st.Tree.Lookup(path)
		if err != nil {
			lookupErr = err
			return st, false
		}
		node, _ := st.Tree.Node(id)
		name = node.Name
		fetch = isExpanded || node.Query != query

		tree := st.Tree.Clone()
		tree.Update(id, func(n *nodetree.Node) {
			n.IsExpanded = isExpanded
			n.Query = query
		})
		st.Tree = tree
		if fetch {
			st.LoadingNodeName = name
		} else if st.LoadingNodeName == name {
			st.LoadingNodeName = ""
		}
		return st, true
	})
	if lookupErr != nil {
		return fmt.Errorf("update node %q: %w", scopes.FormatPath(path), lookupErr)
	}
	if !fetch {
		return nil
	}

	items, err := s.nodes.FetchNodes(ctx, name, query)
	if err != nil {
		s.logger.Warn("node fetch failed, showing no children", "operation", "fetch_nodes", "parent", name, "query", query, "err", err)
		metrics.DegradedFetchesTotal.WithLabelValues("fetch_nodes").Inc()
		items = nil
	}
	fresh := make([]nodetree.Node, 0, len(items))
	for _, item := range items {
		fresh = append(fresh, nodetree.NewNode(item))
	}

	s.store.TryUpdate(func(st State) (State, bool) {
		if s.epoch != epoch {
			metrics.StaleResultsTotal.WithLabelValues(machineName, "fetch_nodes").Inc()
			return st, false
		}
		if st.LoadingNodeName == name {
			st.LoadingNodeName = ""
		}
		id, err := st.Tree.Lookup(path)
		if err != nil {
			// The node's branch was dropped while fetching.
			metrics.StaleResultsTotal.WithLabelValues(machineName, "fetch_nodes").Inc()
			return st, true
		}

		tree := st.Tree.Clone()
		tree.ReplaceChildren(id, persistedChildren(st.TreeScopes, path), fresh)
		st.Tree = tree

		if selected, treeScopes, changed := backfillPaths(st.Scopes, st.TreeScopes, path, tree.Children(id)); changed {
			st.Scopes = selected
			st.TreeScopes = treeScopes
		}
		return st, true
	})
	return nil
}

// ToggleNodeSelect adds the scope linked by the node at path to the edited
// selection, or removes it when already selected. Selecting under a parent
// that disables multi-select, or under a different parent than the current
// selection, replaces the selection.
func (s *Service) ToggleNodeSelect(path []string) error {
	var (
		toggleErr error
		prefetch  string
	)
	s.store.TryUpdate(func(st State) (State, bool) {
		id, err := st.Tree.Lookup(path)
		if err != nil {
			toggleErr = err
			return st, false
		}
		node, _ := st.Tree.Node(id)
		if !node.IsSelectable || node.LinkID == "" {
			toggleErr = ErrNotSelectable
			return st, false
		}
		parent, _ := st.Tree.Node(node.Parent)

		if idx := indexOfTreeScope(st.TreeScopes, node.LinkID); idx >= 0 {
			st.TreeScopes = slices.Delete(slices.Clone(st.TreeScopes), idx, idx+1)
			return st, true
		}

		prefetch = node.LinkID
		treeScope := scopes.TreeScope{ScopeName: node.LinkID, Path: slices.Clone(path)}
		if parent.DisableMultiSelect || !selectedFromSameParent(st, node.Parent, path) {
			st.TreeScopes = []scopes.TreeScope{treeScope}
		} else {
			st.TreeScopes = append(slices.Clone(st.TreeScopes), treeScope)
		}
		return st, true
	})
	if toggleErr != nil {
		return fmt.Errorf("toggle node %q: %w", scopes.FormatPath(path), toggleErr)
	}
	if prefetch != "" {
		s.resolver.Prefetch(prefetch)
	}
	return nil
}

// selectedFromSameParent reports whether the current selection was made under
// the parent of path. An empty selection counts as the same parent. Entries
// restored without a path are matched through the parent's loaded children.
func selectedFromSameParent(st State, parentID nodetree.NodeID, path []string) bool {
	if len(st.TreeScopes) == 0 {
		return true
	}
	first := st.TreeScopes[0]
	if len(first.Path) > 0 {
		return scopes.PathsEqual(scopes.ParentPath(first.Path), scopes.ParentPath(path))
	}
	for _, sibling := range st.Tree.Children(parentID) {
		if sibling.LinkID == first.ScopeName {
			return true
		}
	}
	return false
}

// OpenPicker collapses the tree, reveals the ancestors of the first applied
// scope and opens the picker. It does nothing in read-only mode.
func (s *Service) OpenPicker() {
	s.store.TryUpdate(func(st State) (State, bool) {
		if st.IsReadOnly {
			return st, false
		}
		path := []string{""}
		if len(st.Scopes) > 0 && len(st.Scopes[0].Path) > 0 {
			path = scopes.ParentPath(st.Scopes[0].Path)
		}
		st.Tree = st.Tree.Collapsed().ExpandedAlong(path)
		st.IsOpened = true
		return st, true
	})
}

func (s *Service) ClosePicker() {
	s.store.Update(func(st State) State {
		st.IsOpened = false
		return st
	})
}

// ApplySelection applies the selection currently edited in the picker.
func (s *Service) ApplySelection(ctx context.Context) error {
	return s.UpdateScopes(ctx, s.store.Snapshot().TreeScopes)
}

// UpdateScopes applies treeScopes. Equal input (same names and paths in the
// same order) is a no-op. Otherwise placeholders are published at once and the
// dashboards fetch is started; the resolved scopes replace the placeholders
// unless a newer call has started in the meantime. Entries without a path get
// the path of a matching node that is already loaded.
func (s *Service) UpdateScopes(ctx context.Context, treeScopes []scopes.TreeScope) error {
	treeScopes = cloneTreeScopes(treeScopes)

	var generation uint64
	_, changed := s.store.TryUpdate(func(st State) (State, bool) {
		treeScopes = withLoadedPaths(treeScopes, st.Tree)
		if scopes.TreeScopesEqual(treeScopes, scopes.TreeScopesFromSelected(st.Scopes)) {
			return st, false
		}
		s.generation++
		generation = s.generation

		placeholders := make([]scopes.SelectedScope, 0, len(treeScopes))
		for _, ts := range treeScopes {
			placeholders = append(placeholders, scopes.SelectedScope{
				Scope: scopes.BasicScope(ts.ScopeName),
				Path:  slices.Clone(ts.Path),
			})
		}
		st.Scopes = placeholders
		st.TreeScopes = treeScopes
		st.IsLoading = true
		return st, true
	})
	if !changed {
		return nil
	}

	names := scopes.TreeScopeNames(treeScopes)
	if s.dashboards != nil {
		s.dashboards.StartFetch(ctx, names)
	}

	var resolved []scopes.Scope
	results, resolveErr := scopesync.ParallelCollect(ctx, names, s.workers,
		func(ctx context.Context, name string) (scopes.Scope, error) {
			return s.resolver.FetchScope(ctx, name), nil
		}, nil)
	if resolveErr == nil {
		resolved = scopesync.Values(results)
	}

	s.store.TryUpdate(func(st State) (State, bool) {
		if s.generation != generation {
			metrics.StaleResultsTotal.WithLabelValues(machineName, "update_scopes").Inc()
			return st, false
		}
		if resolveErr != nil {
			st.IsLoading = false
			return st, true
		}
		selected := make([]scopes.SelectedScope, 0, len(treeScopes))
		for i, ts := range treeScopes {
			selected = append(selected, scopes.SelectedScope{Scope: resolved[i], Path: currentPath(st, i, ts)})
		}
		st.Scopes = selected
		st.IsLoading = false
		return st, true
	})
	if resolveErr != nil {
		return fmt.Errorf("resolve scopes: %w", resolveErr)
	}
	return nil
}

// ChangeScopes applies a selection known only by scope names. Names already
// selected keep their path and names linked by a loaded node take its path;
// the others start with no path and are attached by later node fetches.
func (s *Service) ChangeScopes(ctx context.Context, names []string) error {
	st := s.store.Snapshot()
	treeScopes := make([]scopes.TreeScope, 0, len(names))
	for _, name := range names {
		treeScopes = append(treeScopes, scopes.TreeScope{ScopeName: name, Path: knownPath(st, name)})
	}
	return s.UpdateScopes(ctx, treeScopes)
}

func knownPath(st State, name string) []string {
	for _, sel := range st.Scopes {
		if sel.Scope.Metadata.Name == name && len(sel.Path) > 0 {
			return slices.Clone(sel.Path)
		}
	}
	for _, ts := range st.TreeScopes {
		if ts.ScopeName == name && len(ts.Path) > 0 {
			return slices.Clone(ts.Path)
		}
	}
	return []string{}
}

// ResetDirtyScopeNames drops unapplied picker edits.
func (s *Service) ResetDirtyScopeNames() {
	s.store.Update(func(st State) State {
		st.TreeScopes = scopes.TreeScopesFromSelected(st.Scopes)
		return st
	})
}

func (s *Service) RemoveAllScopes(ctx context.Context) error {
	return s.UpdateScopes(ctx, []scopes.TreeScope{})
}

func (s *Service) Enable() {
	s.setFlags(func(st *State) { st.IsEnabled = true })
}

func (s *Service) Disable() {
	s.setFlags(func(st *State) { st.IsEnabled = false })
}

// EnterReadOnly also closes the picker.
func (s *Service) EnterReadOnly() {
	s.setFlags(func(st *State) {
		st.IsReadOnly = true
		st.IsOpened = false
	})
}

func (s *Service) ExitReadOnly() {
	s.setFlags(func(st *State) { st.IsReadOnly = false })
}

// Reset restores the initial state. Results of calls still in flight are dropped.
func (s *Service) Reset() {
	s.store.Update(func(State) State {
		s.generation++
		s.epoch++
		return initialState()
	})
}

func (s *Service) setFlags(fn func(*State)) {
	s.store.Update(func(st State) State {
		fn(&st)
		return st
	})
}

func cloneTreeScopes(in []scopes.TreeScope) []scopes.TreeScope {
	out := make([]scopes.TreeScope, 0, len(in))
	for _, ts := range in {
		out = append(out, scopes.TreeScope{ScopeName: ts.ScopeName, Path: slices.Clone(ts.Path)})
	}
	return out
}
