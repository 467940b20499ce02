package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scopenav/scopenav/internal/scopes"
)

// Validate checks the catalog's referential integrity. Every problem found is
// reported, joined into one error.
func (c Catalog) Validate() error {
	var errs []error

	scopeNames := make(map[string]struct{}, len(c.Scopes))
	for i, s := range c.Scopes {
		name := strings.TrimSpace(s.Metadata.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("scopes[%d]: name is required", i))
			continue
		}
		if _, dup := scopeNames[name]; dup {
			errs = append(errs, fmt.Errorf("scope %q: duplicate name", name))
		}
		scopeNames[name] = struct{}{}
		for j, f := range s.Spec.Filters {
			if f.Key == "" {
				errs = append(errs, fmt.Errorf("scope %q: filters[%d]: key is required", name, j))
			}
			if !f.Operator.Valid() {
				errs = append(errs, fmt.Errorf("scope %q: filters[%d]: unknown operator %q", name, j, f.Operator))
			}
		}
	}

	nodeNames := make(map[string]struct{}, len(c.Nodes))
	for i, n := range c.Nodes {
		name := strings.TrimSpace(n.Metadata.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: name is required", i))
			continue
		}
		if _, dup := nodeNames[name]; dup {
			errs = append(errs, fmt.Errorf("node %q: duplicate name", name))
		}
		nodeNames[name] = struct{}{}
	}
	for _, n := range c.Nodes {
		name := n.Metadata.Name
		if name == "" {
			continue
		}
		switch n.Spec.NodeType {
		case scopes.NodeTypeContainer, scopes.NodeTypeLeaf:
		default:
			errs = append(errs, fmt.Errorf("node %q: unknown node type %q", name, n.Spec.NodeType))
		}
		if parent := n.Spec.ParentName; parent != "" {
			if _, ok := nodeNames[parent]; !ok {
				errs = append(errs, fmt.Errorf("node %q: parent %q does not exist", name, parent))
			}
		}
		switch n.Spec.LinkType {
		case "":
			if n.Spec.LinkID != "" {
				errs = append(errs, fmt.Errorf("node %q: linkId set without linkType", name))
			}
		case scopes.LinkTypeScope:
			if n.Spec.NodeType != scopes.NodeTypeLeaf {
				errs = append(errs, fmt.Errorf("node %q: only leaf nodes can link to a scope", name))
			}
			if _, ok := scopeNames[n.Spec.LinkID]; !ok {
				errs = append(errs, fmt.Errorf("node %q: linked scope %q does not exist", name, n.Spec.LinkID))
			}
		default:
			errs = append(errs, fmt.Errorf("node %q: unknown link type %q", name, n.Spec.LinkType))
		}
	}
	if err := checkNodeCycles(c.Nodes); err != nil {
		errs = append(errs, err)
	}

	bindingNames := make(map[string]struct{}, len(c.Bindings))
	for i, b := range c.Bindings {
		name := strings.TrimSpace(b.Metadata.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("bindings[%d]: name is required", i))
			continue
		}
		if _, dup := bindingNames[name]; dup {
			errs = append(errs, fmt.Errorf("binding %q: duplicate name", name))
		}
		bindingNames[name] = struct{}{}
		if strings.TrimSpace(b.Spec.Dashboard) == "" {
			errs = append(errs, fmt.Errorf("binding %q: dashboard is required", name))
		}
		if _, ok := scopeNames[b.Spec.Scope]; !ok {
			errs = append(errs, fmt.Errorf("binding %q: scope %q does not exist", name, b.Spec.Scope))
		}
	}

	return errors.Join(errs...)
}

func checkNodeCycles(nodes []scopes.ScopeNode) error {
	parent := make(map[string]string, len(nodes))
	for _, n := range nodes {
		parent[n.Metadata.Name] = n.Spec.ParentName
	}
	for _, n := range nodes {
		seen := map[string]struct{}{}
		for cur := n.Metadata.Name; cur != ""; cur = parent[cur] {
			if _, loop := seen[cur]; loop {
				return fmt.Errorf("node %q: parent chain forms a cycle", n.Metadata.Name)
			}
			seen[cur] = struct{}{}
		}
	}
	return nil
}
