// Package location keeps the applied scopes in the page URL.
package location

import (
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/scopenav/scopenav/internal/observable"
)

// ScopesParam is the query parameter repeated once per applied scope.
const ScopesParam = "scopes"

// Location is a path plus its query parameters.
type Location struct {
	Path  string
	Query url.Values
}

// Parse reads a location from a path with an optional query, e.g. "/d/abc?scopes=a".
func Parse(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, err
	}
	return Location{Path: u.Path, Query: u.Query()}, nil
}

func (l Location) String() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

func (l Location) clone() Location {
	return Location{Path: l.Path, Query: cloneValues(l.Query)}
}

// ScopeNames returns the scope names carried by l, in order, without blanks.
func ScopeNames(l Location) []string {
	out := []string{}
	for _, name := range l.Query[ScopesParam] {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ScopesQuery renders names as the query fragment used by ScopeNames.
func ScopesQuery(names []string) string {
	return url.Values{ScopesParam: names}.Encode()
}

// Service is the subset of a browser history API the scopes services need.
type Service interface {
	Current() Location
	Push(Location)
	Replace(Location)
	// Partial sets the given query parameters on the current location. A key
	// with no values is removed.
	Partial(params url.Values, replace bool)
	Subscribe() (<-chan Location, func())
}

// Memory is an in-memory history stack.
type Memory struct {
	mu      sync.Mutex
	entries []Location
	store   *observable.Store[Location]
}

func NewMemory(initial Location) *Memory {
	initial = initial.clone()
	return &Memory{
		entries: []Location{initial},
		store:   observable.New(initial),
	}
}

func (m *Memory) Current() Location {
	return m.store.Snapshot().clone()
}

func (m *Memory) Push(l Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l = l.clone()
	m.entries = append(m.entries, l)
	m.store.Update(func(Location) Location { return l })
}

func (m *Memory) Replace(l Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l = l.clone()
	m.entries[len(m.entries)-1] = l
	m.store.Update(func(Location) Location { return l })
}

func (m *Memory) Partial(params url.Values, replace bool) {
	next := m.Current()
	if next.Query == nil {
		next.Query = url.Values{}
	}
	for key, values := range params {
		if len(values) == 0 {
			next.Query.Del(key)
			continue
		}
		next.Query[key] = slices.Clone(values)
	}
	if replace {
		m.Replace(next)
		return
	}
	m.Push(next)
}

// Back moves to the previous entry. It reports false at the first entry.
func (m *Memory) Back() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) < 2 {
		return false
	}
	m.entries = m.entries[:len(m.entries)-1]
	prev := m.entries[len(m.entries)-1].clone()
	m.store.Update(func(Location) Location { return prev })
	return true
}

// Len is the number of history entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Subscribe() (<-chan Location, func()) {
	return m.store.Subscribe()
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = slices.Clone(values)
	}
	return out
}
