package selector

import (
	"slices"

	"github.com/scopenav/scopenav/internal/nodetree"
	"github.com/scopenav/scopenav/internal/scopes"
)

// backfillPaths attaches a path to every selection entry that has none, using
// the children freshly fetched under parentPath. An entry gets
// parentPath+child when a selectable child links to its scope. Entries with no
// match keep an empty path until a later fetch reveals their node.
//
// The inputs are not modified. changed is false when nothing was resolved.
func backfillPaths(
	selected []scopes.SelectedScope,
	treeScopes []scopes.TreeScope,
	parentPath []string,
	children []nodetree.Node,
) (outSelected []scopes.SelectedScope, outTreeScopes []scopes.TreeScope, changed bool) {
	pathFor := func(scopeName string) ([]string, bool) {
		for _, child := range children {
			if child.IsSelectable && child.LinkID == scopeName {
				return append(slices.Clone(parentPath), child.Name), true
			}
		}
		return nil, false
	}

	outSelected = selected
	clonedSelected := false
	for i, s := range selected {
		if len(s.Path) > 0 {
			continue
		}
		path, ok := pathFor(s.Scope.Metadata.Name)
		if !ok {
			continue
		}
		if !clonedSelected {
			outSelected = slices.Clone(selected)
			clonedSelected = true
		}
		outSelected[i].Path = path
		changed = true
	}

	outTreeScopes = treeScopes
	clonedTree := false
	for i, ts := range treeScopes {
		if len(ts.Path) > 0 {
			continue
		}
		path, ok := pathFor(ts.ScopeName)
		if !ok {
			continue
		}
		if !clonedTree {
			outTreeScopes = slices.Clone(treeScopes)
			clonedTree = true
		}
		outTreeScopes[i].Path = path
		changed = true
	}
	return outSelected, outTreeScopes, changed
}

// persistedChildren names the children of the node at nodePath that back an
// entry of treeScopes. They survive a refetch that filters them out.
func persistedChildren(treeScopes []scopes.TreeScope, nodePath []string) map[string]bool {
	keep := make(map[string]bool)
	for _, ts := range treeScopes {
		if len(ts.Path) < 2 {
			continue
		}
		if !scopes.PathsEqual(scopes.ParentPath(ts.Path), nodePath) {
			continue
		}
		keep[ts.Path[len(ts.Path)-1]] = true
	}
	return keep
}

// loadedPaths maps each scope linked by a selectable loaded node to the path of
// that node. The first node in display order wins.
func loadedPaths(tree *nodetree.Tree) map[string][]string {
	paths := make(map[string][]string)
	tree.Walk(nodetree.RootID, func(n nodetree.Node, _ int) bool {
		if n.IsSelectable && n.LinkID != "" {
			if _, ok := paths[n.LinkID]; !ok {
				paths[n.LinkID] = tree.Path(n.ID)
			}
		}
		return true
	})
	return paths
}

// withLoadedPaths fills the empty paths of treeScopes from the nodes already
// loaded in tree. treeScopes is not modified.
func withLoadedPaths(treeScopes []scopes.TreeScope, tree *nodetree.Tree) []scopes.TreeScope {
	var paths map[string][]string
	out := treeScopes
	cloned := false
	for i, ts := range treeScopes {
		if len(ts.Path) > 0 {
			continue
		}
		if paths == nil {
			paths = loadedPaths(tree)
		}
		path, ok := paths[ts.ScopeName]
		if !ok {
			continue
		}
		if !cloned {
			out = slices.Clone(treeScopes)
			cloned = true
		}
		out[i].Path = slices.Clone(path)
	}
	return out
}

// currentPath returns the path to keep for the entry at index i of a
// resolved selection. A path backfilled into the live state after the
// selection was captured wins over the captured empty one.
func currentPath(st State, i int, ts scopes.TreeScope) []string {
	if len(ts.Path) > 0 {
		return slices.Clone(ts.Path)
	}
	if i < len(st.Scopes) && st.Scopes[i].Scope.Metadata.Name == ts.ScopeName && len(st.Scopes[i].Path) > 0 {
		return slices.Clone(st.Scopes[i].Path)
	}
	if i < len(st.TreeScopes) && st.TreeScopes[i].ScopeName == ts.ScopeName && len(st.TreeScopes[i].Path) > 0 {
		return slices.Clone(st.TreeScopes[i].Path)
	}
	if path, ok := loadedPaths(st.Tree)[ts.ScopeName]; ok {
		return path
	}
	return []string{}
}
