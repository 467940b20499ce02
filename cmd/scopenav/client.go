package main

import (
	"context"
	"log/slog"

	"github.com/scopenav/scopenav/internal/app"
	"github.com/scopenav/scopenav/internal/config"
	"github.com/scopenav/scopenav/internal/location"
	"github.com/scopenav/scopenav/internal/selector"
)

// startClientApp builds the client services against SCOPENAV_API_URL and
// loads the root nodes. rawURL seeds the location, so scopes named in it are
// applied before the function returns.
func startClientApp(ctx context.Context, rawURL string) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	loc, err := location.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, slog.Default(), app.Options{Location: loc})
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// expandAlong expands every node from the first level down to path. query
// filters the children of the last node only.
func expandAlong(ctx context.Context, sel *selector.Service, path []string, query string) error {
	for i := 2; i <= len(path); i++ {
		q := ""
		if i == len(path) {
			q = query
		}
		if err := sel.UpdateNode(ctx, path[:i], true, q); err != nil {
			return err
		}
	}
	return nil
}
