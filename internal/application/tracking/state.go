package tracking

import (
	"fmt"
	"sync"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/baechuer/seatwatch/internal/metrics"
)

// State is the single owner of the live RequestSet. Every mutation goes through
// Update, which works on a copy, persists it, and only then publishes it.
type State struct {
	mu    sync.Mutex
	set   domain.RequestSet
	store Store
}

// LoadState reads the persisted set. A corrupt file is returned as an error and
// never replaced by an empty set.
func LoadState(store Store) (*State, error) {
	set, err := store.Load()
	if err != nil {
		return nil, err
	}
	metrics.SetTrackedRequests(set.Len())
	return &State{set: set, store: store}, nil
}

// Snapshot returns a deep copy safe to read without the lock.
func (s *State) Snapshot() domain.RequestSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Clone()
}

func (s *State) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.IndexOf(id) >= 0
}

// Update applies fn to a copy of the set and persists it. If fn or the save fails,
// the in-memory set is left untouched.
func (s *State) Update(fn func(set *domain.RequestSet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.set.Clone()
	if err := fn(&next); err != nil {
		return err
	}

	err := s.store.Save(next)
	metrics.RecordStoreSave(err)
	if err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	s.set = next
	metrics.SetTrackedRequests(next.Len())
	return nil
}
