package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/selector"
)

// Selector is the part of selector.Service that Bind drives.
type Selector interface {
	Subscribe() (<-chan selector.State, func())
	ChangeScopes(ctx context.Context, names []string) error
}

// Bind restores the selection named in the current URL, then mirrors every
// change of the applied scopes into the URL, replacing the current entry.
// The returned stop function ends the mirroring and waits for it to exit.
func Bind(ctx context.Context, sel Selector, loc Service, logger *slog.Logger) (func(), error) {
	logger = logging.Component(logger, "location")

	if names := ScopeNames(loc.Current()); len(names) > 0 {
		logger.Debug("restoring scopes from url", "scopes", names)
		if err := sel.ChangeScopes(ctx, names); err != nil && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("restore scopes from url: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	states, unsubscribe := sel.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				MirrorScopes(loc, st.AppliedNames())
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

// MirrorScopes writes names into the scopes parameter of the current entry
// unless it already holds them.
func MirrorScopes(loc Service, names []string) {
	if slices.Equal(names, ScopeNames(loc.Current())) {
		return
	}
	loc.Partial(url.Values{ScopesParam: names}, true)
}
