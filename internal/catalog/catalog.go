// Package catalog holds the scopes, scope nodes and dashboard bindings served
// by the reference backend, and the stores that answer the gateway queries.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scopenav/scopenav/internal/scopes"
)

// DefaultNodeLimit caps ListChildNodes when no limit is given.
const DefaultNodeLimit = 1000

// ErrNotFound is returned for an unknown scope.
var ErrNotFound = errors.New("not found")

// Catalog is the full content of a backend namespace.
type Catalog struct {
	Scopes   []scopes.Scope                 `yaml:"scopes"`
	Nodes    []scopes.ScopeNode             `yaml:"nodes"`
	Bindings []scopes.ScopeDashboardBinding `yaml:"bindings"`
}

// Store answers the three backend queries.
type Store interface {
	ListChildNodes(ctx context.Context, parent, query string, limit int) ([]scopes.ScopeNode, error)
	GetScope(ctx context.Context, name string) (scopes.Scope, error)
	ListBindings(ctx context.Context, scopeNames []string) ([]scopes.ScopeDashboardBinding, error)
}

// LoadFile reads and validates a YAML catalog.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog. Unknown fields are rejected.
func Parse(r io.Reader) (Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Catalog{}, errors.New("catalog is empty")
		}
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Counts returns the number of objects per kind.
func (c Catalog) Counts() map[string]int {
	return map[string]int{
		"scope":   len(c.Scopes),
		"node":    len(c.Nodes),
		"binding": len(c.Bindings),
	}
}
