// Package nodetree stores the lazily loaded scope node tree as an arena of
// nodes addressed by stable IDs. Each node owns an ordered list of child IDs;
// there is no sharing between parents.
//
// A Tree is mutable, but callers that publish one (for example in a state
// snapshot) must treat it as frozen and mutate a Clone instead.
package nodetree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/scopenav/scopenav/internal/scopes"
)

// ErrPathNotFound is returned when a path walks through a level that has not been loaded.
var ErrPathNotFound = errors.New("node path not found")

// NodeID addresses a node inside one Tree and its clones.
type NodeID uint64

// RootID is the synthetic root node. Its name is "" and it is always expanded.
const RootID NodeID = 0

// Reason tags why a node is present among its parent's children.
type Reason int

const (
	// ReasonResult marks a node returned by the latest fetch of its parent.
	ReasonResult Reason = iota
	// ReasonPersisted marks a node kept because it backs a selected scope that
	// fell outside the latest query filter.
	ReasonPersisted
)

func (r Reason) String() string {
	switch r {
	case ReasonPersisted:
		return "persisted"
	default:
		return "result"
	}
}

// Node is a value copy of one arena entry.
type Node struct {
	ID     NodeID
	Parent NodeID

	Name               string
	NodeType           scopes.NodeType
	Title              string
	Description        string
	Category           string
	LinkType           scopes.LinkType
	LinkID             string
	IsExpandable       bool
	IsSelectable       bool
	IsExpanded         bool
	DisableMultiSelect bool
	Query              string
	Reason             Reason

	children []NodeID
}

// NewNode builds a detached node from a backend record.
func NewNode(item scopes.ScopeNode) Node {
	return Node{
		Name:               item.Metadata.Name,
		NodeType:           item.Spec.NodeType,
		Title:              item.Spec.Title,
		Description:        item.Spec.Description,
		Category:           item.Spec.Category,
		LinkType:           item.Spec.LinkType,
		LinkID:             item.Spec.LinkID,
		IsExpandable:       item.Spec.NodeType == scopes.NodeTypeContainer,
		IsSelectable:       item.Spec.LinkType == scopes.LinkTypeScope,
		DisableMultiSelect: item.Spec.DisableMultiSelect,
		Reason:             ReasonResult,
	}
}

// ChildCount returns the number of loaded children.
func (n Node) ChildCount() int {
	return len(n.children)
}

type Tree struct {
	nodes map[NodeID]*Node
	next  NodeID
}

// New returns a tree holding only the expanded root.
func New() *Tree {
	return &Tree{
		nodes: map[NodeID]*Node{
			RootID: {
				ID:           RootID,
				Parent:       RootID,
				NodeType:     scopes.NodeTypeContainer,
				IsExpandable: true,
				IsExpanded:   true,
			},
		},
		next: RootID + 1,
	}
}

// Clone returns a full structural copy. IDs are preserved.
func (t *Tree) Clone() *Tree {
	out := &Tree{nodes: make(map[NodeID]*Node, len(t.nodes)), next: t.next}
	for id, n := range t.nodes {
		cp := *n
		cp.children = slices.Clone(n.children)
		out.nodes[id] = &cp
	}
	return out
}

// Len returns the number of nodes including the root.
func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) Root() Node {
	n, _ := t.Node(RootID)
	return n
}

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id NodeID) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.children = slices.Clone(n.children)
	return cp, true
}

// Child finds the child of parent named name.
func (t *Tree) Child(parent NodeID, name string) (NodeID, bool) {
	p, ok := t.nodes[parent]
	if !ok {
		return 0, false
	}
	for _, id := range p.children {
		if t.nodes[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// Children returns copies of the children of id in display order.
func (t *Tree) Children(id NodeID) []Node {
	p, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(p.children))
	for _, cid := range p.children {
		n, _ := t.Node(cid)
		out = append(out, n)
	}
	return out
}

// Lookup walks path from the root. path[0] must be the root name "".
func (t *Tree) Lookup(path []string) (NodeID, error) {
	if len(path) == 0 || path[0] != "" {
		return 0, fmt.Errorf("%w: path must start at the root", ErrPathNotFound)
	}
	id := RootID
	for i := 1; i < len(path); i++ {
		next, ok := t.Child(id, path[i])
		if !ok {
			return 0, fmt.Errorf("%w: %q not loaded under %q", ErrPathNotFound, path[i], scopes.FormatPath(path[:i]))
		}
		id = next
	}
	return id, nil
}

// Path returns the names from the root down to id, starting with "".
func (t *Tree) Path(id NodeID) []string {
	var rev []string
	for {
		n, ok := t.nodes[id]
		if !ok {
			return nil
		}
		rev = append(rev, n.Name)
		if id == RootID {
			break
		}
		id = n.Parent
	}
	slices.Reverse(rev)
	return rev
}

// Update applies fn to the node. Identity and structure fields are restored
// after fn returns so only the node's own attributes can change.
func (t *Tree) Update(id NodeID, fn func(*Node)) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	ident, parent, name, children := n.ID, n.Parent, n.Name, n.children
	fn(n)
	n.ID, n.Parent, n.Name, n.children = ident, parent, name, children
	if id == RootID {
		n.IsExpanded = true
	}
	return true
}

// ReplaceChildren swaps the child set of parent. Existing children named in
// keep and absent from fresh survive with their subtrees and are tagged
// ReasonPersisted; every other existing child is dropped. Fresh nodes are
// appended after the persisted ones, in order, tagged ReasonResult.
func (t *Tree) ReplaceChildren(parent NodeID, keep map[string]bool, fresh []Node) bool {
	p, ok := t.nodes[parent]
	if !ok {
		return false
	}

	freshNames := make(map[string]struct{}, len(fresh))
	for _, n := range fresh {
		freshNames[n.Name] = struct{}{}
	}

	children := make([]NodeID, 0, len(p.children)+len(fresh))
	for _, cid := range p.children {
		child := t.nodes[cid]
		_, refetched := freshNames[child.Name]
		if keep[child.Name] && !refetched {
			child.Reason = ReasonPersisted
			children = append(children, cid)
			continue
		}
		t.deleteSubtree(cid)
	}

	seen := make(map[string]struct{}, len(fresh))
	for _, n := range fresh {
		if _, dup := seen[n.Name]; dup {
			continue
		}
		seen[n.Name] = struct{}{}
		id := t.next
		t.next++
		n.ID = id
		n.Parent = parent
		n.Reason = ReasonResult
		n.children = nil
		t.nodes[id] = &n
		children = append(children, id)
	}
	p.children = children
	return true
}

func (t *Tree) deleteSubtree(id NodeID) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	for _, cid := range n.children {
		t.deleteSubtree(cid)
	}
	delete(t.nodes, id)
}

// Collapsed returns a copy with every node collapsed except the root.
func (t *Tree) Collapsed() *Tree {
	out := t.Clone()
	for id, n := range out.nodes {
		if id == RootID {
			continue
		}
		n.IsExpanded = false
	}
	return out
}

// ExpandedAlong returns a copy where every loaded node on path is expanded.
// Expansion stops at the first segment that is not loaded.
func (t *Tree) ExpandedAlong(path []string) *Tree {
	out := t.Clone()
	if len(path) == 0 || path[0] != "" {
		return out
	}
	id := RootID
	out.nodes[id].IsExpanded = true
	for i := 1; i < len(path); i++ {
		next, ok := out.Child(id, path[i])
		if !ok {
			break
		}
		out.nodes[next].IsExpanded = true
		id = next
	}
	return out
}

// Walk visits nodes depth first in display order, starting below id.
// Returning false from fn skips the node's children.
func (t *Tree) Walk(id NodeID, fn func(n Node, depth int) bool) {
	t.walk(id, 0, fn)
}

func (t *Tree) walk(id NodeID, depth int, fn func(n Node, depth int) bool) {
	p, ok := t.nodes[id]
	if !ok {
		return
	}
	for _, cid := range p.children {
		n, _ := t.Node(cid)
		if fn(n, depth) {
			t.walk(cid, depth+1, fn)
		}
	}
}
