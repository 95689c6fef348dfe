package testcase

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps encoded documents in a map. Values are stored encoded so
// callers never share a *TestCase with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, name string, tc *TestCase) error {
	if err := ValidateName(name); err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	data, err := Encode(tc)
	if err != nil {
		return &StoreError{Op: "put", Name: name, Err: err}
	}
	s.mu.Lock()
	s.docs[name] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, name string) (*TestCase, error) {
	s.mu.RLock()
	data, ok := s.docs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, &StoreError{Op: "get", Name: name, Err: ErrNotFound}
	}
	tc, err := Decode(data)
	if err != nil {
		return nil, &StoreError{Op: "get", Name: name, Err: err}
	}
	return tc, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[name]; !ok {
		return &StoreError{Op: "delete", Name: name, Err: ErrNotFound}
	}
	delete(s.docs, name)
	return nil
}
