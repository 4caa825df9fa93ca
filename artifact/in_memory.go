package artifact

import (
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore keeps artifacts in process memory. Saves are atomic per
// artifact and bytes are copied both ways, so callers can never mutate a
// stored payload. A write hook can simulate storage failures in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string][]byte // session -> artifact -> bytes
	fail   func(sessionID, artifactID string) error
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{scopes: make(map[string]map[string][]byte)}
}

// FailWrites installs a hook consulted before every Save. A non-nil error
// aborts the write and leaves the previous bytes in place. Pass nil to
// remove the hook.
func (s *InMemoryStore) FailWrites(fn func(sessionID, artifactID string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

func (s *InMemoryStore) Save(sessionID, artifactID string, data []byte) error {
	if err := checkKey(sessionID, artifactID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(sessionID, artifactID); err != nil {
			return fmt.Errorf("save %s/%s: %w", sessionID, artifactID, err)
		}
	}
	scope, ok := s.scopes[sessionID]
	if !ok {
		scope = make(map[string][]byte)
		s.scopes[sessionID] = scope
	}
	scope[artifactID] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the stored bytes or an error matching core.ErrNotFound.
func (s *InMemoryStore) Get(sessionID, artifactID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.scopes[sessionID][artifactID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// List returns the sorted artifact ids of a session.
func (s *InMemoryStore) List(sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.scopes[sessionID]), nil
}

// Scopes returns the sorted session ids holding at least one artifact.
func (s *InMemoryStore) Scopes() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.scopes), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
