package repository

import (
	"context"
	"sync"
)

// MemoryHoldStore keeps every session's keys in process memory.  It backs
// tests and single-instance deployments (HOLD_STORE=memory).
type MemoryHoldStore struct {
	mu       sync.Mutex
	sessions map[string]map[HoldKey]string
}

// NewMemoryHoldStore returns an empty store.
func NewMemoryHoldStore() *MemoryHoldStore {
	return &MemoryHoldStore{sessions: make(map[string]map[HoldKey]string)}
}

// ForSession returns the HoldRepository view of one session.
func (m *MemoryHoldStore) ForSession(sessionID string) HoldRepository {
	return &memorySession{store: m, id: sessionID}
}

type memorySession struct {
	store *MemoryHoldStore
	id    string
}

func (s *memorySession) Get(_ context.Context, key HoldKey) (string, bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	v, ok := s.store.sessions[s.id][key]
	return v, ok, nil
}

func (s *memorySession) Set(_ context.Context, key HoldKey, value string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	kv, ok := s.store.sessions[s.id]
	if !ok {
		kv = make(map[HoldKey]string)
		s.store.sessions[s.id] = kv
	}
	kv[key] = value
	return nil
}

func (s *memorySession) SetIfAbsent(_ context.Context, key HoldKey, value string) (bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	kv, ok := s.store.sessions[s.id]
	if !ok {
		kv = make(map[HoldKey]string)
		s.store.sessions[s.id] = kv
	}
	if _, exists := kv[key]; exists {
		return false, nil
	}
	kv[key] = value
	return true, nil
}

func (s *memorySession) Clear(_ context.Context, keys ...HoldKey) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	kv := s.store.sessions[s.id]
	for _, k := range keys {
		delete(kv, k)
	}
	if len(kv) == 0 {
		delete(s.store.sessions, s.id)
	}
	return nil
}
