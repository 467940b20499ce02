package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/scopenav/scopenav/internal/scopes"
)

func loadTestCatalog(t *testing.T) Catalog {
	t.Helper()
	c, err := LoadFile(filepath.Join("testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	return c
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	c := loadTestCatalog(t)
	counts := c.Counts()
	if counts["scope"] != 4 || counts["node"] != 6 || counts["binding"] != 5 {
		t.Fatalf("Counts() = %v", counts)
	}
	vote := c.Scopes[3]
	if vote.Metadata.Name != "slothVoteTracker" || len(vote.Spec.Filters) != 1 {
		t.Fatalf("scope = %#v", vote)
	}
	if f := vote.Spec.Filters[0]; f.Operator != scopes.FilterOperatorOneOf || len(f.Values) != 2 {
		t.Fatalf("filter = %#v", f)
	}
	if !c.Nodes[1].Spec.DisableMultiSelect {
		t.Fatal("clusters node lost disableMultiSelect")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("scopes: []\nwidgets: []\n"))
	if err == nil || !strings.Contains(err.Error(), "widgets") {
		t.Fatalf("Parse() error = %v, want unknown field error", err)
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	if _, err := Parse(strings.NewReader("")); err == nil {
		t.Fatal("Parse(empty) error = nil")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	scope := func(name string) scopes.Scope {
		return scopes.Scope{Metadata: scopes.ObjectMeta{Name: name}, Spec: scopes.ScopeSpec{Title: name}}
	}
	node := func(name, parent string, nodeType scopes.NodeType, linkID string) scopes.ScopeNode {
		n := scopes.ScopeNode{
			Metadata: scopes.ObjectMeta{Name: name},
			Spec:     scopes.ScopeNodeSpec{ParentName: parent, NodeType: nodeType, Title: name},
		}
		if linkID != "" {
			n.Spec.LinkType = scopes.LinkTypeScope
			n.Spec.LinkID = linkID
		}
		return n
	}

	tests := []struct {
		name    string
		catalog Catalog
		wantErr string
	}{
		{
			name: "valid",
			catalog: Catalog{
				Scopes: []scopes.Scope{scope("a")},
				Nodes:  []scopes.ScopeNode{node("root", "", scopes.NodeTypeContainer, ""), node("leaf", "root", scopes.NodeTypeLeaf, "a")},
			},
		},
		{
			name:    "duplicate scope",
			catalog: Catalog{Scopes: []scopes.Scope{scope("a"), scope("a")}},
			wantErr: `scope "a": duplicate name`,
		},
		{
			name: "bad operator",
			catalog: Catalog{Scopes: []scopes.Scope{{
				Metadata: scopes.ObjectMeta{Name: "a"},
				Spec:     scopes.ScopeSpec{Filters: []scopes.ScopeFilter{{Key: "k", Operator: "like"}}},
			}}},
			wantErr: "unknown operator",
		},
		{
			name:    "missing parent",
			catalog: Catalog{Nodes: []scopes.ScopeNode{node("leaf", "nowhere", scopes.NodeTypeLeaf, "")}},
			wantErr: `parent "nowhere" does not exist`,
		},
		{
			name: "container links a scope",
			catalog: Catalog{
				Scopes: []scopes.Scope{scope("a")},
				Nodes:  []scopes.ScopeNode{node("c", "", scopes.NodeTypeContainer, "a")},
			},
			wantErr: "only leaf nodes",
		},
		{
			name:    "dangling link",
			catalog: Catalog{Nodes: []scopes.ScopeNode{node("leaf", "", scopes.NodeTypeLeaf, "ghost")}},
			wantErr: `linked scope "ghost" does not exist`,
		},
		{
			name: "cycle",
			catalog: Catalog{Nodes: []scopes.ScopeNode{
				node("x", "y", scopes.NodeTypeContainer, ""),
				node("y", "x", scopes.NodeTypeContainer, ""),
			}},
			wantErr: "cycle",
		},
		{
			name: "binding without dashboard",
			catalog: Catalog{
				Scopes: []scopes.Scope{scope("a")},
				Bindings: []scopes.ScopeDashboardBinding{{
					Metadata: scopes.ObjectMeta{Name: "b"},
					Spec:     scopes.ScopeDashboardBindingSpec{Scope: "a"},
				}},
			},
			wantErr: "dashboard is required",
		},
		{
			name: "binding to unknown scope",
			catalog: Catalog{Bindings: []scopes.ScopeDashboardBinding{{
				Metadata: scopes.ObjectMeta{Name: "b"},
				Spec:     scopes.ScopeDashboardBindingSpec{Dashboard: "d", Scope: "ghost"},
			}}},
			wantErr: `scope "ghost" does not exist`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.catalog.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
