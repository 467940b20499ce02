// Package observable provides a single-writer state container that publishes
// every full snapshot to its subscribers.
package observable

import (
	"sync"
)

// Store holds the current snapshot of a state machine. All mutations go
// through Update, which runs under the store lock, so readers and
// subscribers never observe a partially applied change.
//
// Snapshots are shared by value: S may contain slices, maps or pointers, and
// update functions must replace them instead of mutating them in place.
type Store[S any] struct {
	mu      sync.Mutex
	state   S
	version uint64
	subs    map[uint64]*subscriber[S]
	nextSub uint64
	onEmit  func()
}

type subscriber[S any] struct {
	ch chan S
}

// New returns a store holding initial.
func New[S any](initial S) *Store[S] {
	return &Store[S]{state: initial, subs: make(map[uint64]*subscriber[S])}
}

// OnEmit registers a hook called after every published update, under the store lock.
func (s *Store[S]) OnEmit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEmit = fn
}

// Snapshot returns the current state.
func (s *Store[S]) Snapshot() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version counts published updates.
func (s *Store[S]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Update replaces the state with fn(current) and publishes it.
func (s *Store[S]) Update(fn func(S) S) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	s.publishLocked()
	return s.state
}

// TryUpdate is Update with a veto: when fn returns false nothing is published.
func (s *Store[S]) TryUpdate(fn func(S) (S, bool)) (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := fn(s.state)
	if !ok {
		return s.state, false
	}
	s.state = next
	s.publishLocked()
	return s.state, true
}

func (s *Store[S]) publishLocked() {
	s.version++
	for _, sub := range s.subs {
		sub.offer(s.state)
	}
	if s.onEmit != nil {
		s.onEmit()
	}
}

// offer delivers v without blocking. A subscriber that has not consumed the
// previous snapshot gets it replaced by v.
func (sub *subscriber[S]) offer(v S) {
	for {
		select {
		case sub.ch <- v:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// Subscribe returns a channel that receives the current snapshot immediately
// and then the latest snapshot after each update. Call cancel to stop; the
// channel is closed afterwards.
func (s *Store[S]) Subscribe() (<-chan S, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := &subscriber[S]{ch: make(chan S, 1)}
	sub.ch <- s.state
	s.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// SubscriberCount returns the number of active subscriptions.
func (s *Store[S]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
