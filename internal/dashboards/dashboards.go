// Package dashboards implements the suggested dashboards panel: the dashboards
// bound to the applied scopes, grouped into folders and filtered by a search query.
package dashboards

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/metrics"
	"github.com/scopenav/scopenav/internal/observable"
	"github.com/scopenav/scopenav/internal/scopes"
)

const machineName = "dashboards"

// BindingFetcher lists the dashboard bindings of a set of scopes.
type BindingFetcher interface {
	FetchDashboardBindings(ctx context.Context, scopeNames []string) ([]scopes.ScopeDashboardBinding, error)
}

type State struct {
	Dashboards      []scopes.ScopeDashboardBinding
	Folders         Folders
	FilteredFolders Folders
	// ForScopeNames are the scopes the current dashboards were fetched for.
	ForScopeNames []string
	SearchQuery   string

	IsLoading     bool
	IsPanelOpened bool
	IsEnabled     bool
	IsReadOnly    bool
}

func initialState() State {
	return State{
		Dashboards:      []scopes.ScopeDashboardBinding{},
		Folders:         Folders{},
		FilteredFolders: Folders{},
		ForScopeNames:   []string{},
	}
}

type Service struct {
	store    *observable.Store[State]
	bindings BindingFetcher
	logger   *slog.Logger

	// generation is only touched inside store update functions.
	generation uint64
	fetches    sync.WaitGroup
}

func New(bindings BindingFetcher, logger *slog.Logger) *Service {
	s := &Service{
		store:    observable.New(initialState()),
		bindings: bindings,
		logger:   logging.Component(logger, machineName),
	}
	s.store.OnEmit(func() {
		metrics.StateUpdatesTotal.WithLabelValues(machineName).Inc()
	})
	return s
}

func (s *Service) Snapshot() State {
	return s.store.Snapshot()
}

func (s *Service) Subscribe() (<-chan State, func()) {
	return s.store.Subscribe()
}

// FetchDashboards loads the dashboards bound to scopeNames and waits for the
// result. See StartFetch.
func (s *Service) FetchDashboards(ctx context.Context, scopeNames []string) {
	<-s.StartFetch(ctx, scopeNames)
}

// StartFetch marks the dashboards of scopeNames as loading and fetches them in
// the background. It does nothing when the names equal the ones already
// fetched for, and clears the panel when scopeNames is empty. A failed fetch
// shows no dashboards. The returned channel is closed once the fetch settled.
func (s *Service) StartFetch(ctx context.Context, scopeNames []string) <-chan struct{} {
	done := make(chan struct{})
	scopeNames = slices.Clone(scopeNames)
	if scopeNames == nil {
		scopeNames = []string{}
	}

	var generation uint64
	_, changed := s.store.TryUpdate(func(st State) (State, bool) {
		if slices.Equal(st.ForScopeNames, scopeNames) {
			return st, false
		}
		s.generation++
		generation = s.generation
		if len(scopeNames) == 0 {
			st.Dashboards = []scopes.ScopeDashboardBinding{}
			st.Folders = Folders{}
			st.FilteredFolders = Folders{}
			st.ForScopeNames = []string{}
			st.IsLoading = false
			st.IsPanelOpened = false
			return st, true
		}
		st.ForScopeNames = scopeNames
		st.IsLoading = true
		return st, true
	})
	if !changed || len(scopeNames) == 0 {
		close(done)
		return done
	}

	s.fetches.Go(func() {
		defer close(done)
		s.fetch(ctx, scopeNames, generation)
	})
	return done
}

// Wait blocks until every fetch started so far has settled.
func (s *Service) Wait() {
	s.fetches.Wait()
}

func (s *Service) fetch(ctx context.Context, scopeNames []string, generation uint64) {
	bindings, err := s.bindings.FetchDashboardBindings(ctx, scopeNames)
	if err != nil {
		s.logger.Warn("dashboard bindings fetch failed, showing no dashboards", "operation", "fetch_dashboard_bindings", "scope", scopeNames, "err", err)
		metrics.DegradedFetchesTotal.WithLabelValues("fetch_dashboard_bindings").Inc()
		bindings = nil
	}
	if bindings == nil {
		bindings = []scopes.ScopeDashboardBinding{}
	}
	folders := GroupDashboards(bindings)

	s.store.TryUpdate(func(st State) (State, bool) {
		if s.generation != generation {
			metrics.StaleResultsTotal.WithLabelValues(machineName, "fetch_dashboards").Inc()
			return st, false
		}
		st.Dashboards = bindings
		st.Folders = folders
		st.FilteredFolders = FilterFolders(folders, st.SearchQuery)
		st.IsLoading = false
		st.IsPanelOpened = true
		return st, true
	})
}

// ChangeSearchQuery refilters the folders with query.
func (s *Service) ChangeSearchQuery(query string) {
	s.store.Update(func(st State) State {
		st.SearchQuery = query
		st.FilteredFolders = FilterFolders(st.Folders, query)
		return st
	})
}

func (s *Service) ClearSearchQuery() {
	s.ChangeSearchQuery("")
}

// UpdateFolder expands or collapses the folder at path, starting with the root
// key "". The filtered view is updated too when it contains the folder.
func (s *Service) UpdateFolder(path []string, isExpanded bool) error {
	var updateErr error
	s.store.TryUpdate(func(st State) (State, bool) {
		folders, err := withExpanded(st.Folders, path, isExpanded)
		if err != nil {
			updateErr = err
			return st, false
		}
		st.Folders = folders
		if filtered, err := withExpanded(st.FilteredFolders, path, isExpanded); err == nil {
			st.FilteredFolders = filtered
		}
		return st, true
	})
	if updateErr != nil {
		return fmt.Errorf("update folder %q: %w", scopes.FormatPath(path), updateErr)
	}
	return nil
}

func (s *Service) TogglePanel() {
	s.setFlags(func(st *State) { st.IsPanelOpened = !st.IsPanelOpened })
}

func (s *Service) OpenPanel() {
	s.setFlags(func(st *State) { st.IsPanelOpened = true })
}

func (s *Service) ClosePanel() {
	s.setFlags(func(st *State) { st.IsPanelOpened = false })
}

func (s *Service) Enable() {
	s.setFlags(func(st *State) { st.IsEnabled = true })
}

func (s *Service) Disable() {
	s.setFlags(func(st *State) { st.IsEnabled = false })
}

// EnterReadOnly also closes the panel.
func (s *Service) EnterReadOnly() {
	s.setFlags(func(st *State) {
		st.IsReadOnly = true
		st.IsPanelOpened = false
	})
}

func (s *Service) ExitReadOnly() {
	s.setFlags(func(st *State) { st.IsReadOnly = false })
}

// Reset restores the initial state and drops fetches still in flight.
func (s *Service) Reset() {
	s.store.Update(func(State) State {
		s.generation++
		return initialState()
	})
}

func (s *Service) setFlags(fn func(*State)) {
	s.store.Update(func(st State) State {
		fn(&st)
		return st
	})
}
