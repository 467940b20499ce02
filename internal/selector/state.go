package selector

import (
	"github.com/scopenav/scopenav/internal/nodetree"
	"github.com/scopenav/scopenav/internal/scopes"
)

// State is one published snapshot of the selector. Snapshots are immutable:
// the tree and slices are replaced, never edited, by later transitions.
type State struct {
	// Tree holds the loaded scope nodes. Its root is the node named "".
	Tree *nodetree.Tree
	// LoadingNodeName is the name of the node whose children are being fetched.
	LoadingNodeName string
	// Scopes is the applied selection.
	Scopes []scopes.SelectedScope
	// TreeScopes is the selection being edited in the picker.
	TreeScopes []scopes.TreeScope

	IsEnabled  bool
	IsReadOnly bool
	IsOpened   bool
	IsLoading  bool
}

func initialState() State {
	return State{
		Tree:       nodetree.New(),
		Scopes:     []scopes.SelectedScope{},
		TreeScopes: []scopes.TreeScope{},
	}
}

// AppliedNames returns the names of the applied scopes in order.
func (s State) AppliedNames() []string {
	return scopes.SelectedScopeNames(s.Scopes)
}

// IsSelected reports whether scopeName is part of the edited selection.
func (s State) IsSelected(scopeName string) bool {
	return indexOfTreeScope(s.TreeScopes, scopeName) >= 0
}

func indexOfTreeScope(treeScopes []scopes.TreeScope, scopeName string) int {
	for i, ts := range treeScopes {
		if ts.ScopeName == scopeName {
			return i
		}
	}
	return -1
}
