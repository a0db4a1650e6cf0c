package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/puzzleworks/piecefinder/pkg/store"
)

// Driver implements store.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of puzzles
	mu sync.RWMutex

	// puzzles is the in memory map of puzzles keyed by ID
	puzzles map[string]*store.Puzzle
}

// NewDriver creates a new in-memory puzzle store.
func NewDriver() *Driver {
	return &Driver{
		puzzles: make(map[string]*store.Puzzle),
	}
}

// Put stores a puzzle. Returns true if the puzzle was newly inserted,
// false if a puzzle with the same ID was replaced.
func (s *Driver) Put(_ context.Context, puzzle *store.Puzzle) (bool, error) {
	if puzzle == nil {
		return false, errors.New("cannot store nil puzzle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.puzzles[puzzle.ID]
	s.puzzles[puzzle.ID] = puzzle
	return !existed, nil
}

// Get retrieves a puzzle by its ID.
func (s *Driver) Get(_ context.Context, id string) (*store.Puzzle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	puzzle, ok := s.puzzles[id]
	if !ok {
		return nil, store.NotFoundError{ID: id}
	}

	return puzzle, nil
}

// Has checks if a puzzle exists by its ID.
func (s *Driver) Has(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.puzzles[id]
	return ok, nil
}

// List returns all puzzles, newest first, without image bytes.
func (s *Driver) List(_ context.Context) ([]*store.Puzzle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	puzzles := make([]*store.Puzzle, 0, len(s.puzzles))
	for _, p := range s.puzzles {
		meta := *p
		meta.Image = nil
		puzzles = append(puzzles, &meta)
	}

	sort.Slice(puzzles, func(i, j int) bool {
		return puzzles[i].CreatedAt.After(puzzles[j].CreatedAt)
	})

	return puzzles, nil
}

// Delete removes a puzzle by its ID.
func (s *Driver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.puzzles[id]; !ok {
		return store.NotFoundError{ID: id}
	}

	delete(s.puzzles, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}
