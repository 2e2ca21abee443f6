// Package identity implements the per-session identity map: the
// registry guaranteeing at most one managed record per identity key
// within a unit-of-work scope.
package identity

import (
	"fmt"
	"sort"

	"github.com/zentity-io/zentity/pkg/entity"
)

// Map registers managed records by identity key. A Map is owned by
// exactly one session and inherits its confinement; it carries no
// locking of its own. Cross-session identity is not guaranteed.
type Map struct {
	records map[entity.Key]*entity.Record
}

// New creates an empty identity map.
func New() *Map {
	return &Map{records: make(map[entity.Key]*entity.Record)}
}

// Get returns the managed record for the key, if any.
func (m *Map) Get(key entity.Key) (*entity.Record, bool) {
	r, ok := m.records[key]
	return r, ok
}

// Register adds a record under its current identity key. Registering
// the same record twice is a no-op; a different record under an
// occupied key fails with ErrDuplicateIdentity.
func (m *Map) Register(rec *entity.Record) (entity.Key, error) {
	key, err := rec.Key()
	if err != nil {
		return entity.Key{}, err
	}
	if existing, ok := m.records[key]; ok {
		if existing == rec {
			return key, nil
		}
		return entity.Key{}, fmt.Errorf("%s: %w", key, entity.ErrDuplicateIdentity)
	}
	m.records[key] = rec
	return key, nil
}

// Forget removes the record registered under the key, if any.
func (m *Map) Forget(key entity.Key) {
	delete(m.records, key)
}

// Records returns all registered records in deterministic key order.
func (m *Map) Records() []*entity.Record {
	keys := make([]entity.Key, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Entity != keys[j].Entity {
			return keys[i].Entity < keys[j].Entity
		}
		return keys[i].ID < keys[j].ID
	})
	out := make([]*entity.Record, len(keys))
	for i, k := range keys {
		out[i] = m.records[k]
	}
	return out
}

// Len returns the number of registered records.
func (m *Map) Len() int { return len(m.records) }
