package memory

import (
	"sync"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// InMemoryStore is a naive process‑local Catalog. Concurrency is protected by
// an RWMutex and FindRelated is a linear scan, which is plenty for the
// handful of records a research project produces.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]core.MetadataRecord // record id -> record
}

// Compile-time assertion.
var _ core.Catalog = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty catalog.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]core.MetadataRecord)}
}

// Put inserts or replaces a record.
func (m *InMemoryStore) Put(rec core.MetadataRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.Tags = append([]string(nil), rec.Tags...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

// FindRelated returns up to limit records sharing at least one tag.
func (m *InMemoryStore) FindRelated(tags []string, limit int) ([]core.MetadataRecord, error) {
	m.mu.RLock()
	recs := make([]core.MetadataRecord, 0, len(m.records))
	for _, r := range m.records {
		r.Tags = append([]string(nil), r.Tags...)
		recs = append(recs, r)
	}
	m.mu.RUnlock()
	return Rank(recs, tags, limit), nil
}

// Reset drops every record.
func (m *InMemoryStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]core.MetadataRecord)
	return nil
}

// Len returns the number of records held.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
