// Package scopes holds the scope, scope node and dashboard binding resources
// exchanged with the scopes API, plus the selection records built on top of them.
package scopes

import (
	"slices"
	"strings"
)

const (
	// APIGroupVersion is the API group and version served by the scopes backend.
	APIGroupVersion = "scope.grafana.app/v0alpha1"
)

type NodeType string

const (
	NodeTypeContainer NodeType = "container"
	NodeTypeLeaf      NodeType = "leaf"
)

type LinkType string

const (
	LinkTypeScope LinkType = "scope"
)

type FilterOperator string

const (
	FilterOperatorEquals        FilterOperator = "equals"
	FilterOperatorNotEquals     FilterOperator = "not-equals"
	FilterOperatorRegexMatch    FilterOperator = "regex-match"
	FilterOperatorRegexNotMatch FilterOperator = "regex-not-match"
	FilterOperatorOneOf         FilterOperator = "one-of"
	FilterOperatorNotOneOf      FilterOperator = "not-one-of"
)

// Valid reports whether op is one of the operators understood by query backends.
func (op FilterOperator) Valid() bool {
	switch op {
	case FilterOperatorEquals, FilterOperatorNotEquals,
		FilterOperatorRegexMatch, FilterOperatorRegexNotMatch,
		FilterOperatorOneOf, FilterOperatorNotOneOf:
		return true
	default:
		return false
	}
}

// MultiValued reports whether the operator reads Values instead of Value.
func (op FilterOperator) MultiValued() bool {
	return op == FilterOperatorOneOf || op == FilterOperatorNotOneOf
}

type ObjectMeta struct {
	Name string `json:"name" yaml:"name"`
}

type ScopeFilter struct {
	Key      string         `json:"key" yaml:"key"`
	Value    string         `json:"value,omitempty" yaml:"value,omitempty"`
	Values   []string       `json:"values,omitempty" yaml:"values,omitempty"`
	Operator FilterOperator `json:"operator" yaml:"operator"`
}

type ScopeSpec struct {
	Title       string        `json:"title" yaml:"title"`
	Type        string        `json:"type,omitempty" yaml:"type,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string        `json:"category,omitempty" yaml:"category,omitempty"`
	Filters     []ScopeFilter `json:"filters" yaml:"filters,omitempty"`
}

// Scope is a named, server-defined filter applied to dashboards and queries.
type Scope struct {
	Metadata ObjectMeta `json:"metadata" yaml:"metadata"`
	Spec     ScopeSpec  `json:"spec" yaml:"spec"`
}

// BasicScope returns the placeholder used for name until the real scope is fetched.
func BasicScope(name string) Scope {
	return Scope{
		Metadata: ObjectMeta{Name: name},
		Spec: ScopeSpec{
			Title:   name,
			Filters: []ScopeFilter{},
		},
	}
}

// Merge overlays server on s. Non-empty server fields win; empty ones keep the
// value already in s.
func (s Scope) Merge(server Scope) Scope {
	out := s
	if server.Metadata.Name != "" {
		out.Metadata.Name = server.Metadata.Name
	}
	if server.Spec.Title != "" {
		out.Spec.Title = server.Spec.Title
	}
	if server.Spec.Type != "" {
		out.Spec.Type = server.Spec.Type
	}
	if server.Spec.Description != "" {
		out.Spec.Description = server.Spec.Description
	}
	if server.Spec.Category != "" {
		out.Spec.Category = server.Spec.Category
	}
	if server.Spec.Filters != nil {
		out.Spec.Filters = slices.Clone(server.Spec.Filters)
	}
	if out.Spec.Filters == nil {
		out.Spec.Filters = []ScopeFilter{}
	}
	return out
}

type ScopeNodeSpec struct {
	ParentName         string   `json:"parentName,omitempty" yaml:"parentName,omitempty"`
	NodeType           NodeType `json:"nodeType" yaml:"nodeType"`
	Title              string   `json:"title" yaml:"title"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category           string   `json:"category,omitempty" yaml:"category,omitempty"`
	LinkType           LinkType `json:"linkType,omitempty" yaml:"linkType,omitempty"`
	LinkID             string   `json:"linkId,omitempty" yaml:"linkId,omitempty"`
	DisableMultiSelect bool     `json:"disableMultiSelect,omitempty" yaml:"disableMultiSelect,omitempty"`
}

// ScopeNode is a navigable entry of the scope tree as served by the backend.
type ScopeNode struct {
	Metadata ObjectMeta    `json:"metadata" yaml:"metadata"`
	Spec     ScopeNodeSpec `json:"spec" yaml:"spec"`
}

type ScopeDashboardBindingSpec struct {
	Dashboard string `json:"dashboard" yaml:"dashboard"`
	Scope     string `json:"scope" yaml:"scope"`
}

type ScopeDashboardBindingStatus struct {
	DashboardTitle string   `json:"dashboardTitle" yaml:"dashboardTitle"`
	Groups         []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// ScopeDashboardBinding associates a scope with a dashboard and optional folder groups.
type ScopeDashboardBinding struct {
	Metadata ObjectMeta                  `json:"metadata" yaml:"metadata"`
	Spec     ScopeDashboardBindingSpec   `json:"spec" yaml:"spec"`
	Status   ScopeDashboardBindingStatus `json:"status" yaml:"status"`
}

// TreeScope records that scope ScopeName was selected by navigating Path.
// Path starts with the root node name "" and may be empty while unresolved.
type TreeScope struct {
	ScopeName string   `json:"scopeName"`
	Path      []string `json:"path"`
}

// SelectedScope is the applied projection of a TreeScope.
type SelectedScope struct {
	Scope Scope    `json:"scope"`
	Path  []string `json:"path"`
}

// TreeScopesEqual compares two selections pairwise, in order.
func TreeScopesEqual(a, b []TreeScope) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ScopeName != b[i].ScopeName || !PathsEqual(a[i].Path, b[i].Path) {
			return false
		}
	}
	return true
}

func TreeScopesFromSelected(selected []SelectedScope) []TreeScope {
	out := make([]TreeScope, 0, len(selected))
	for _, s := range selected {
		out = append(out, TreeScope{ScopeName: s.Scope.Metadata.Name, Path: slices.Clone(s.Path)})
	}
	return out
}

func TreeScopeNames(treeScopes []TreeScope) []string {
	out := make([]string, 0, len(treeScopes))
	for _, ts := range treeScopes {
		out = append(out, ts.ScopeName)
	}
	return out
}

func SelectedScopeNames(selected []SelectedScope) []string {
	out := make([]string, 0, len(selected))
	for _, s := range selected {
		out = append(out, s.Scope.Metadata.Name)
	}
	return out
}

// PathsEqual treats nil and empty paths as equal.
func PathsEqual(a, b []string) bool {
	return slices.Equal(a, b)
}

// ParentPath returns path without its last segment.
func ParentPath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	return path[:len(path)-1]
}

// FormatPath renders a node path as a slash separated string without the root segment.
func FormatPath(path []string) string {
	if len(path) > 0 && path[0] == "" {
		path = path[1:]
	}
	return strings.Join(path, "/")
}

// ParsePath is the inverse of FormatPath: "prod/eu" becomes ["", "prod", "eu"].
func ParsePath(s string) []string {
	out := []string{""}
	for _, part := range strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
