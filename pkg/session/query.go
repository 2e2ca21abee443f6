package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
)

// Load returns the record with the given primary-key values. A key
// already managed by this session answers from the identity map
// without touching the driver, so repeated loads return the same
// instance. Returns entity.ErrNotFound when no row matches and a
// *LoadError when the driver fails.
func (s *Session) Load(ctx context.Context, typeName string, keyValues ...any) (*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, typeName, keyValues...)
}

func (s *Session) loadLocked(ctx context.Context, typeName string, keyValues ...any) (*entity.Record, error) {
	if s.closed {
		return nil, entity.ErrSessionClosed
	}
	desc, err := s.schema.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	keyFields := desc.KeyFields()
	if len(keyValues) != len(keyFields) {
		return nil, fmt.Errorf("load %s: got %d key values, want %d: %w",
			typeName, len(keyValues), len(keyFields), entity.ErrMissingKey)
	}
	values := make(map[string]any, len(keyFields))
	for i, f := range keyFields {
		norm, err := entity.Normalize(f.Kind, keyValues[i])
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", typeName, f.Name, err)
		}
		values[f.Name] = norm
	}
	key, err := entity.MakeKey(desc, values)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", typeName, err)
	}
	if rec, ok := s.ids.Get(key); ok {
		return rec, nil
	}

	where := make([]driver.Predicate, 0, len(keyFields))
	for _, f := range keyFields {
		where = append(where, driver.Predicate{Column: f.Column, Value: values[f.Name]})
	}
	res, err := s.drv.Execute(ctx, selectStatement(desc, where))
	if err != nil {
		return nil, &LoadError{Entity: typeName, Err: err}
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%s: %w", key, entity.ErrNotFound)
	}
	return s.hydrate(desc, res.Rows[0])
}

// Get returns the first record matching the filter, or
// entity.ErrNotFound.
func (s *Session) Get(ctx context.Context, typeName string, filter map[string]any) (*entity.Record, error) {
	recs, err := s.Filter(ctx, typeName, filter)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", typeName, entity.ErrNotFound)
	}
	return recs[0], nil
}

// Filter returns all records matching the field filter. An empty or
// nil filter matches every row. Rows whose key is already managed
// resolve to the existing instance, never a duplicate.
func (s *Session) Filter(ctx context.Context, typeName string, filter map[string]any) ([]*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(ctx, typeName, filter)
}

func (s *Session) filterLocked(ctx context.Context, typeName string, filter map[string]any) ([]*entity.Record, error) {
	if s.closed {
		return nil, entity.ErrSessionClosed
	}
	desc, err := s.schema.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	where, err := predicates(desc, filter)
	if err != nil {
		return nil, err
	}
	res, err := s.drv.Execute(ctx, selectStatement(desc, where))
	if err != nil {
		return nil, &LoadError{Entity: typeName, Err: err}
	}
	recs := make([]*entity.Record, 0, len(res.Rows))
	for _, row := range res.Rows {
		rec, err := s.hydrate(desc, row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// All returns every record of the type.
func (s *Session) All(ctx context.Context, typeName string) ([]*entity.Record, error) {
	return s.Filter(ctx, typeName, nil)
}

// GetOrCreate returns the first record matching the given values, or
// registers a new one carrying them when nothing matches. The new
// record is pending until Commit.
//
// A value may be a *entity.Record under a to-one relationship name:
// it is registered if still Transient and replaced by its key under
// the relationship's foreign-key field before matching.
func (s *Session) GetOrCreate(ctx context.Context, typeName string, values map[string]any) (*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, entity.ErrSessionClosed
	}
	desc, err := s.schema.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	flat, err := s.flattenNested(desc, values)
	if err != nil {
		return nil, err
	}
	recs, err := s.filterLocked(ctx, typeName, flat)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		return recs[0], nil
	}
	rec := entity.NewRecord(desc)
	if err := rec.SetAll(flat); err != nil {
		return nil, err
	}
	if err := s.registerNewLocked(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// flattenNested rewrites record-valued entries to foreign-key values,
// registering Transient targets on the way.
func (s *Session) flattenNested(desc *entity.Descriptor, values map[string]any) (map[string]any, error) {
	flat := make(map[string]any, len(values))
	for name, v := range values {
		nested, ok := v.(*entity.Record)
		if !ok {
			flat[name] = v
			continue
		}
		rel, err := desc.Relationship(name)
		if err != nil {
			return nil, err
		}
		if rel.Cardinality != entity.ToOne {
			return nil, fmt.Errorf("%s.%s: %w", desc.Name, name, entity.ErrWrongCardinality)
		}
		if nested.State() == entity.Transient {
			if err := s.registerNewLocked(nested); err != nil {
				return nil, err
			}
		}
		keyField := nested.Descriptor().KeyFields()[0]
		keyVal, err := nested.Get(keyField.Name)
		if err != nil {
			return nil, err
		}
		if keyVal == nil {
			return nil, fmt.Errorf("%s.%s: nested %s: %w",
				desc.Name, name, nested.Descriptor().Name, entity.ErrMissingKey)
		}
		flat[rel.ForeignKey] = keyVal
	}
	return flat, nil
}

// hydrate turns a driver row into a managed record. The identity map
// wins: a row whose key is already managed returns the live instance
// and the fetched values are discarded.
func (s *Session) hydrate(desc *entity.Descriptor, row driver.Row) (*entity.Record, error) {
	values := make(map[string]any, len(desc.Fields))
	for i := range desc.Fields {
		f := &desc.Fields[i]
		raw, ok := row[f.Column]
		if !ok {
			continue
		}
		v, err := entity.Decode(f.Kind, raw)
		if err != nil {
			return nil, &LoadError{Entity: desc.Name, Err: fmt.Errorf("column %s: %w", f.Column, err)}
		}
		values[f.Name] = v
	}
	key, err := entity.MakeKey(desc, values)
	if err != nil {
		return nil, &LoadError{Entity: desc.Name, Err: err}
	}
	if rec, ok := s.ids.Get(key); ok {
		return rec, nil
	}
	rec := entity.NewRecord(desc)
	rec.ReplaceValues(values)
	rec.SetState(entity.Managed)
	if _, err := s.ids.Register(rec); err != nil {
		return nil, err
	}
	s.tracker.Snapshot(rec)
	return rec, nil
}

// predicates builds a deterministic where clause from a field filter.
func predicates(desc *entity.Descriptor, filter map[string]any) ([]driver.Predicate, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(filter))
	for name := range filter {
		names = append(names, name)
	}
	sort.Strings(names)
	where := make([]driver.Predicate, 0, len(names))
	for _, name := range names {
		f, err := desc.Field(name)
		if err != nil {
			return nil, err
		}
		v := filter[name]
		if v != nil {
			norm, err := entity.Normalize(f.Kind, v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", desc.Name, name, err)
			}
			v = norm
		}
		where = append(where, driver.Predicate{Column: f.Column, Value: v})
	}
	return where, nil
}

// selectStatement builds a full-row select for the descriptor.
func selectStatement(desc *entity.Descriptor, where []driver.Predicate) driver.Statement {
	cols := make([]string, len(desc.Fields))
	for i := range desc.Fields {
		cols[i] = desc.Fields[i].Column
	}
	return driver.Statement{
		Op:         driver.OpSelect,
		Entity:     desc.Name,
		Table:      desc.Table,
		Columns:    cols,
		Where:      where,
		KeyColumns: keyColumns(desc),
	}
}

// keyColumns lists the primary-key columns of a descriptor.
func keyColumns(desc *entity.Descriptor) []string {
	keys := desc.KeyFields()
	cols := make([]string, len(keys))
	for i, f := range keys {
		cols[i] = f.Column
	}
	return cols
}
