package registry

import "sync"

// ValueStore keeps the latest value per tag identifier. Values for identifiers
// without a definition are kept and simply never read by the builders.
type ValueStore struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewValueStore() *ValueStore {
	return &ValueStore{values: make(map[string]any)}
}

func (s *ValueStore) Set(id string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = v
}

func (s *ValueStore) Get(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return v, ok
}

func (s *ValueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
