package item

import (
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Store holds items in insertion order together with the id counter.
//
// Items are kept in a slice rather than a map so that List returns them in
// the order they were created; replace and merge write back to the same
// position.
type Store struct {
	mu        sync.Mutex
	items     []Item
	currentID int64
	logger    Logger
}

// NewStore creates an empty store. The first created item gets id 1.
func NewStore() *Store {
	return &Store{
		items:  make([]Item, 0),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// List returns a copy of every item in insertion order.
// An empty store returns an empty, non-nil slice.
func (s *Store) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the item with the given id.
// Returns ErrItemNotFound if no item has that id.
func (s *Store) Get(id int64) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Item{}, fmt.Errorf("getting item %d: %w", id, ErrItemNotFound)
	}
	return s.items[idx], nil
}

// Create assigns the next id to the payload, appends the new item and
// returns it. The counter increment and the append happen under one lock.
func (s *Store) Create(payload ItemBase) Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentID++
	created := Item{
		ID:       s.currentID,
		Ganancia: payload.Ganancia,
		Peso:     payload.Peso,
	}
	s.items = append(s.items, created)

	s.logger.Debug("item created", "id", created.ID, "count", len(s.items))
	return created
}

// Replace overwrites every writable field of the item with the given id,
// keeping its id and its position. There is no upsert: an unknown id
// returns ErrItemNotFound and leaves the store unchanged.
func (s *Store) Replace(id int64, payload ItemBase) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Item{}, fmt.Errorf("replacing item %d: %w", id, ErrItemNotFound)
	}

	replaced := Item{
		ID:       id,
		Ganancia: payload.Ganancia,
		Peso:     payload.Peso,
	}
	s.items[idx] = replaced

	s.logger.Debug("item replaced", "id", id)
	return replaced, nil
}

// Merge overwrites only the fields present in the update and returns the
// resulting item. An empty update leaves the item unchanged.
// Returns ErrItemNotFound if no item has that id.
func (s *Store) Merge(id int64, update ItemUpdate) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Item{}, fmt.Errorf("updating item %d: %w", id, ErrItemNotFound)
	}

	s.items[idx].apply(update)

	s.logger.Debug("item updated", "id", id, "empty_update", update.IsEmpty())
	return s.items[idx], nil
}

// Delete removes the single item carrying the given id. Items with equal
// field values but a different id are untouched.
// Returns ErrItemNotFound if no item has that id.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("deleting item %d: %w", id, ErrItemNotFound)
	}

	s.items = append(s.items[:idx], s.items[idx+1:]...)

	s.logger.Debug("item deleted", "id", id, "count", len(s.items))
	return nil
}

// Count returns the number of stored items.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// LastID returns the most recently assigned id, or 0 if nothing has been
// created yet.
func (s *Store) LastID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// indexOf returns the slice position of the item with the given id, or -1.
// Callers must hold s.mu.
func (s *Store) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
