package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scopenav/scopenav/internal/scopes"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ChangeChannel is notified after every committed Import.
const ChangeChannel = "scopenav_catalog_changed"

// importLockKey serializes concurrent imports.
const importLockKey int64 = 0x73636f70656e6176

// PostgresStore serves the catalog from the tables created by db/migrations.
type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const listChildNodesSQL = `
SELECT name, parent_name, node_type, title, description, category, link_type, link_id, disable_multi_select
FROM scope_nodes
WHERE parent_name = $1
  AND ($2 = '' OR title ILIKE '%' || $2 || '%')
ORDER BY title, name
LIMIT $3`

func (p *PostgresStore) ListChildNodes(ctx context.Context, parent, query string, limit int) ([]scopes.ScopeNode, error) {
	rows, err := p.db.Query(ctx, listChildNodesSQL, parent, escapeLike(strings.TrimSpace(query)), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scope nodes: %w", err)
	}
	defer rows.Close()

	out := []scopes.ScopeNode{}
	for rows.Next() {
		var (
			n        scopes.ScopeNode
			nodeType string
			linkType string
		)
		if err := rows.Scan(
			&n.Metadata.Name,
			&n.Spec.ParentName,
			&nodeType,
			&n.Spec.Title,
			&n.Spec.Description,
			&n.Spec.Category,
			&linkType,
			&n.Spec.LinkID,
			&n.Spec.DisableMultiSelect,
		); err != nil {
			return nil, fmt.Errorf("scan scope node: %w", err)
		}
		n.Spec.NodeType = scopes.NodeType(nodeType)
		n.Spec.LinkType = scopes.LinkType(linkType)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scope nodes: %w", err)
	}
	return out, nil
}

const getScopeSQL = `
SELECT name, title, type, description, category, filters
FROM scopes
WHERE name = $1`

func (p *PostgresStore) GetScope(ctx context.Context, name string) (scopes.Scope, error) {
	var (
		s       scopes.Scope
		filters []byte
	)
	err := p.db.QueryRow(ctx, getScopeSQL, name).Scan(
		&s.Metadata.Name,
		&s.Spec.Title,
		&s.Spec.Type,
		&s.Spec.Description,
		&s.Spec.Category,
		&filters,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scopes.Scope{}, fmt.Errorf("scope %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return scopes.Scope{}, fmt.Errorf("get scope %q: %w", name, err)
	}
	s.Spec.Filters = []scopes.ScopeFilter{}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &s.Spec.Filters); err != nil {
			return scopes.Scope{}, fmt.Errorf("decode filters of scope %q: %w", name, err)
		}
	}
	return s, nil
}

const listBindingsSQL = `
SELECT name, scope_name, dashboard, dashboard_title, groups
FROM scope_dashboard_bindings
WHERE scope_name = ANY($1::text[])
ORDER BY array_position($1::text[], scope_name), position, name`

func (p *PostgresStore) ListBindings(ctx context.Context, scopeNames []string) ([]scopes.ScopeDashboardBinding, error) {
	out := []scopes.ScopeDashboardBinding{}
	names := dedupe(scopeNames)
	if len(names) == 0 {
		return out, nil
	}

	rows, err := p.db.Query(ctx, listBindingsSQL, names)
	if err != nil {
		return nil, fmt.Errorf("list dashboard bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b scopes.ScopeDashboardBinding
		if err := rows.Scan(
			&b.Metadata.Name,
			&b.Spec.Scope,
			&b.Spec.Dashboard,
			&b.Status.DashboardTitle,
			&b.Status.Groups,
		); err != nil {
			return nil, fmt.Errorf("scan dashboard binding: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dashboard bindings: %w", err)
	}
	return out, nil
}

// Import replaces every stored object with the content of c in one transaction.
func (p *PostgresStore) Import(ctx context.Context, c Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, importLockKey); err != nil {
		return fmt.Errorf("lock catalog: %w", err)
	}
	if _, err := tx.Exec(ctx, `TRUNCATE scope_dashboard_bindings, scope_nodes, scopes`); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range c.Scopes {
		filters := s.Spec.Filters
		if filters == nil {
			filters = []scopes.ScopeFilter{}
		}
		raw, err := json.Marshal(filters)
		if err != nil {
			return fmt.Errorf("encode filters of scope %q: %w", s.Metadata.Name, err)
		}
		batch.Queue(`INSERT INTO scopes (name, title, type, description, category, filters) VALUES ($1, $2, $3, $4, $5, $6)`,
			s.Metadata.Name, s.Spec.Title, s.Spec.Type, s.Spec.Description, s.Spec.Category, raw)
	}
	for _, n := range c.Nodes {
		batch.Queue(`INSERT INTO scope_nodes (name, parent_name, node_type, title, description, category, link_type, link_id, disable_multi_select) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			n.Metadata.Name, n.Spec.ParentName, string(n.Spec.NodeType), n.Spec.Title, n.Spec.Description, n.Spec.Category, string(n.Spec.LinkType), n.Spec.LinkID, n.Spec.DisableMultiSelect)
	}
	for i, b := range c.Bindings {
		groups := b.Status.Groups
		if groups == nil {
			groups = []string{}
		}
		batch.Queue(`INSERT INTO scope_dashboard_bindings (name, scope_name, dashboard, dashboard_title, groups, position) VALUES ($1, $2, $3, $4, $5, $6)`,
			b.Metadata.Name, b.Spec.Scope, b.Spec.Dashboard, b.Status.DashboardTitle, groups, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert catalog: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, '')`, ChangeChannel); err != nil {
		return fmt.Errorf("notify catalog change: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// Load reads the whole stored catalog.
func (p *PostgresStore) Load(ctx context.Context) (Catalog, error) {
	var c Catalog

	rows, err := p.db.Query(ctx, `SELECT name FROM scopes ORDER BY name`)
	if err != nil {
		return Catalog{}, fmt.Errorf("list scopes: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Catalog{}, fmt.Errorf("list scopes: %w", err)
	}
	for _, name := range names {
		s, err := p.GetScope(ctx, name)
		if err != nil {
			return Catalog{}, err
		}
		c.Scopes = append(c.Scopes, s)
	}

	parents := []string{""}
	for len(parents) > 0 {
		parent := parents[0]
		parents = parents[1:]
		nodes, err := p.ListChildNodes(ctx, parent, "", DefaultNodeLimit)
		if err != nil {
			return Catalog{}, err
		}
		for _, n := range nodes {
			c.Nodes = append(c.Nodes, n)
			parents = append(parents, n.Metadata.Name)
		}
	}

	bindings, err := p.ListBindings(ctx, names)
	if err != nil {
		return Catalog{}, err
	}
	c.Bindings = bindings
	return c, nil
}

// escapeLike quotes the LIKE wildcards in a user query.
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
