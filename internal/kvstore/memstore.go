package kvstore

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store.
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string][]byte)}
}

func (s *MemStore) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemStore) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[string(key)] = append(make([]byte, 0, len(value)), value...)
	return nil
}

func (s *MemStore) Remove(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, string(key))
	return nil
}

func (s *MemStore) Write(_ context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range b.ops {
		if op.remove {
			delete(s.m, string(op.key))
			continue
		}
		s.m[string(op.key)] = append(make([]byte, 0, len(op.value)), op.value...)
	}
	return nil
}

// Len reports the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
