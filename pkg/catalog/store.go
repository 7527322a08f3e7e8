package catalog

import (
	"sync/atomic"
)

// Store owns the live catalog index. Readers call Index and get a
// consistent immutable snapshot; hot reloads build a replacement off to
// the side and publish it with Swap. Nothing mutates in place, so an
// in-flight match never observes a half-updated catalog.
type Store struct {
	current    atomic.Pointer[Index]
	generation atomic.Uint64
}

// NewStore creates a store serving the given index
func NewStore(idx *Index) *Store {
	s := &Store{}
	idx.generation = s.generation.Add(1)
	s.current.Store(idx)
	return s
}

// Index returns the current catalog snapshot
func (s *Store) Index() *Index {
	return s.current.Load()
}

// Swap publishes a fully built replacement index and returns the one it
// displaced. The new index receives the next generation number before it
// becomes visible.
func (s *Store) Swap(idx *Index) *Index {
	idx.generation = s.generation.Add(1)
	return s.current.Swap(idx)
}
