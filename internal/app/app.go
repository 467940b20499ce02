// Package app is the composition root of the client side: it builds the
// gateway client, the scope cache and the state machines once and wires them
// together by reference.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/scopenav/scopenav/internal/config"
	"github.com/scopenav/scopenav/internal/dashboards"
	"github.com/scopenav/scopenav/internal/gateway"
	"github.com/scopenav/scopenav/internal/location"
	"github.com/scopenav/scopenav/internal/scopecache"
	"github.com/scopenav/scopenav/internal/selector"
)

type Options struct {
	// HTTPClient replaces the gateway's default client.
	HTTPClient *http.Client
	// Location is the initial URL. Scope names in it are restored by Start.
	Location location.Location
}

type App struct {
	Logger     *slog.Logger
	Gateway    *gateway.Client
	Cache      *scopecache.Cache
	Dashboards *dashboards.Service
	Selector   *selector.Service
	Location   *location.Memory

	unbind func()
}

func New(cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := gateway.New(cfg.APIURL, cfg.Namespace, cfg.APIToken, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}
	if cfg.NodeQueryLimit > 0 {
		client.NodeLimit = cfg.NodeQueryLimit
	}
	if opts.HTTPClient != nil {
		client.HTTP = opts.HTTPClient
	}

	cache := scopecache.New(client, scopecache.Options{Logger: logger, FetchTimeout: cfg.RequestTimeout})
	dash := dashboards.New(client, logger)
	sel := selector.New(client, cache, dash, selector.Options{Logger: logger})

	return &App{
		Logger:     logger,
		Gateway:    client,
		Cache:      cache,
		Dashboards: dash,
		Selector:   sel,
		Location:   location.NewMemory(opts.Location),
	}, nil
}

// Start enables the services, binds the URL and loads the root nodes. Scope
// names found in the URL are applied before the root is fetched, so the ones
// linked from the root level get their path from that fetch.
func (a *App) Start(ctx context.Context) error {
	a.Selector.Enable()
	a.Dashboards.Enable()

	unbind, err := location.Bind(ctx, a.Selector, a.Location, a.Logger)
	if err != nil {
		return err
	}
	a.unbind = unbind
	if err := a.Selector.UpdateNode(ctx, []string{""}, true, ""); err != nil {
		return fmt.Errorf("load root nodes: %w", err)
	}
	return nil
}

// Close stops the URL binding and waits for background dashboards fetches
// and prefetches.
func (a *App) Close() {
	if a.unbind != nil {
		a.unbind()
		a.unbind = nil
	}
	a.Dashboards.Wait()
	a.Cache.Wait()
}

// CurrentLocation returns the URL after mirroring the applied scopes into it,
// without waiting for the background binding to catch up.
func (a *App) CurrentLocation() location.Location {
	location.MirrorScopes(a.Location, a.Selector.Snapshot().AppliedNames())
	return a.Location.Current()
}

// Reset restores every service to its initial state.
func (a *App) Reset() {
	a.Selector.Reset()
	a.Dashboards.Reset()
	a.Cache.Reset()
}
