// Package memory provides a generic thread-safe in-memory key-value store
// used by repository adapters.
package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store when the requested key does not exist.
var ErrNotFound = errors.New("not found")

// MutateFunc receives the current value (zero if absent) and returns the
// value to store. keep=false deletes the key; a non-nil error leaves the
// store untouched.
type MutateFunc[V any] func(cur V, exists bool) (next V, keep bool, err error)

// Store is a generic thread-safe in-memory key-value store.
type Store[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

// New creates an empty Store.
func New[V any]() *Store[V] {
	return &Store[V]{data: make(map[string]V)}
}

// Get returns the value for key, or ErrNotFound if absent.
func (s *Store[V]) Get(_ context.Context, key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// Mutate runs fn and applies its result while holding the write lock, so a
// read-modify-write on one key can never interleave with another.
func (s *Store[V]) Mutate(_ context.Context, key string, fn MutateFunc[V]) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.data[key]
	next, keep, err := fn(cur, exists)
	if err != nil {
		var zero V
		return zero, err
	}
	if !keep {
		delete(s.data, key)
		var zero V
		return zero, nil
	}
	s.data[key] = next
	return next, nil
}

// Delete removes the value for key.  Returns ErrNotFound if absent.
func (s *Store[V]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// Filter returns all values for which pred returns true.
func (s *Store[V]) Filter(_ context.Context, pred func(V) bool) ([]V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []V
	for _, v := range s.data {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
