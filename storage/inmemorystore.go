package storage

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore is a Store implementation powered by a map, to be used for
// testing or for servers that need not survive a restart.
type InMemoryStore struct {
	sync.Mutex
	m map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		m: make(map[string][]byte),
	}
}

func (s *InMemoryStore) Put(key, value []byte) (err error) {
	s.Lock()
	s.m[string(key)] = dup(value)
	s.Unlock()
	return nil
}

func (s *InMemoryStore) Get(key []byte) (value []byte, err error) {
	s.Lock()
	value, ok := s.m[string(key)]
	s.Unlock()
	if !ok {
		return nil, fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	if value == nil {
		return []byte{}, nil
	}
	return dup(value), nil
}

func (s *InMemoryStore) Delete(key []byte) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[string(key)]; !ok {
		return fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	delete(s.m, string(key))
	return nil
}

func (s *InMemoryStore) Keys(prefix []byte) (keys [][]byte, err error) {
	s.Lock()
	for k := range s.m {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, []byte(k))
		}
	}
	s.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	return keys, nil
}

// Len returns the number of pairs in the store.
func (s *InMemoryStore) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.m)
}
