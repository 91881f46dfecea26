package prefs

import (
	"context"
	"sync"
)

// MemoryStore keeps preferences in memory.
type MemoryStore struct {
	mu sync.Mutex
	p  Preferences
}

// NewMemoryStore returns a store holding p.
func NewMemoryStore(p Preferences) *MemoryStore {
	return &MemoryStore{p: p.Normalize()}
}

// LoadPreferences returns the held preferences.
func (s *MemoryStore) LoadPreferences(context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p, nil
}

// SavePreferences replaces the held preferences.
func (s *MemoryStore) SavePreferences(_ context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p.Normalize()
	return nil
}
