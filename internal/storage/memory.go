package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store used in tests.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(baseURL string) *MemStore {
	if baseURL == "" {
		baseURL = "mem://store"
	}
	return &MemStore{objects: make(map[string][]byte), baseURL: baseURL}
}

func (s *MemStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return s.baseURL + "/" + key, nil
}

func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Len reports the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
