package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scopenav/scopenav/internal/catalog"
	"github.com/scopenav/scopenav/internal/config"
	httpapp "github.com/scopenav/scopenav/internal/http"
	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/metrics"
	"github.com/scopenav/scopenav/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scopes API backed by PostgreSQL or a catalog file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store := catalog.NewMemoryStore(catalog.Catalog{})
	reloader := &sync.CatalogReloader{Store: store, Logger: logging.Component(nil, "catalog")}
	scheduler := &sync.Scheduler{
		Runner:   reloader,
		Interval: cfg.CatalogReloadInterval,
		Name:     "catalog",
		Logger:   slog.Default(),
	}

	g, ctx := errgroup.WithContext(ctx)

	var listen func() error
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		reloader.Source = catalog.NewPostgresStore(pool).Load
		trigger := make(chan struct{}, 1)
		scheduler.Trigger = trigger
		listen = func() error {
			return sync.ListenForCatalogChanges(ctx, pool, catalog.ChangeChannel, trigger)
		}
		slog.Info("serving catalog from database")
	case cfg.CatalogFile != "":
		reloader.Source = sync.FileSource(cfg.CatalogFile)
		if cfg.CatalogWatch {
			trigger := make(chan struct{}, 1)
			scheduler.Trigger = trigger
			listen = func() error {
				return sync.WatchCatalogFile(ctx, cfg.CatalogFile, 0, trigger, reloader.Logger)
			}
		}
		slog.Info("serving catalog from file",
			"path", cfg.CatalogFile,
			"reload_interval", cfg.CatalogReloadInterval,
			"watch", cfg.CatalogWatch,
		)
	default:
		return errors.New("set DATABASE_URL or CATALOG_FILE to serve a catalog")
	}

	// The first load must succeed before the API starts.
	if err := reloader.RunOnce(ctx); err != nil {
		return err
	}
	if listen != nil {
		g.Go(listen)
	}
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})

	if _, metricsErr := metrics.StartServer(ctx, cfg.MetricsAddr); metricsErr != nil {
		g.Go(func() error {
			select {
			case err := <-metricsErr:
				return err
			case <-ctx.Done():
				return nil
			}
		})
	}

	srv := httpapp.NewEchoServer(store, httpapp.Options{
		Namespace: cfg.Namespace,
		NodeLimit: cfg.NodeQueryLimit,
		Logger:    slog.Default(),
	})
	g.Go(func() error {
		return srv.Serve(ctx, cfg.HTTPAddr)
	})

	return g.Wait()
}
