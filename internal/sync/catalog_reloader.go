package sync

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	gosync "sync"

	"github.com/scopenav/scopenav/internal/catalog"
	"github.com/scopenav/scopenav/internal/metrics"
)

// CatalogSource loads a complete catalog, e.g. catalog.LoadFile or
// (*catalog.PostgresStore).Load.
type CatalogSource func(ctx context.Context) (catalog.Catalog, error)

// FileSource reads the YAML catalog at path.
func FileSource(path string) CatalogSource {
	return func(context.Context) (catalog.Catalog, error) {
		return catalog.LoadFile(path)
	}
}

// CatalogReloader installs the catalog produced by Source into Store. A pass
// whose catalog equals the one already installed returns ErrNothingToDo; a
// failed pass keeps serving the previous catalog.
type CatalogReloader struct {
	Source CatalogSource
	Store  *catalog.MemoryStore
	Logger *slog.Logger

	mu      gosync.Mutex
	current *catalog.Catalog
}

func (r *CatalogReloader) RunOnce(ctx context.Context) error {
	if r == nil || r.Source == nil || r.Store == nil {
		return errors.New("catalog reloader is not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := r.Source(ctx)
	if err != nil {
		metrics.CatalogReloadsTotal.WithLabelValues("failed").Inc()
		return err
	}
	if r.current != nil && reflect.DeepEqual(*r.current, next) {
		metrics.CatalogReloadsTotal.WithLabelValues("unchanged").Inc()
		return ErrNothingToDo
	}

	r.Store.Replace(next)
	r.current = &next
	metrics.CatalogReloadsTotal.WithLabelValues("applied").Inc()
	for kind, n := range next.Counts() {
		metrics.CatalogObjects.WithLabelValues(kind).Set(float64(n))
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("catalog loaded",
		"scopes", len(next.Scopes),
		"nodes", len(next.Nodes),
		"bindings", len(next.Bindings),
	)
	return nil
}
