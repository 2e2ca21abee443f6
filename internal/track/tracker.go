// Package track implements change tracking: per-record snapshots of
// loaded field values and the field-level diff against them.
package track

import (
	"github.com/zentity-io/zentity/pkg/entity"
)

// Tracker holds one snapshot per tracked record. Snapshots are keyed
// by record pointer, not identity key, so a record whose key is
// assigned mid-session stays tracked.
type Tracker struct {
	snaps map[*entity.Record]map[string]any
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{snaps: make(map[*entity.Record]map[string]any)}
}

// Snapshot captures the record's current field values as the new
// baseline, replacing any previous snapshot.
func (t *Tracker) Snapshot(rec *entity.Record) {
	t.snaps[rec] = rec.Values()
}

// Has reports whether the record has a snapshot.
func (t *Tracker) Has(rec *entity.Record) bool {
	_, ok := t.snaps[rec]
	return ok
}

// Diff returns the fields whose current value differs from the
// snapshot, in descriptor field order. Comparison is semantic
// equality per field kind. A record without a snapshot has no diff.
func (t *Tracker) Diff(rec *entity.Record) []entity.FieldDelta {
	snap, ok := t.snaps[rec]
	if !ok {
		return nil
	}
	desc := rec.Descriptor()
	var deltas []entity.FieldDelta
	for i := range desc.Fields {
		f := &desc.Fields[i]
		cur, _ := rec.Get(f.Name)
		old := snap[f.Name]
		if !entity.Equal(f.Kind, old, cur) {
			deltas = append(deltas, entity.FieldDelta{Field: f.Name, Old: old, New: cur})
		}
	}
	return deltas
}

// IsDirty reports whether the record has at least one changed field.
func (t *Tracker) IsDirty(rec *entity.Record) bool {
	return len(t.Diff(rec)) > 0
}

// Revert restores the record's fields to its snapshot values.
// No-op for untracked records.
func (t *Tracker) Revert(rec *entity.Record) {
	snap, ok := t.snaps[rec]
	if !ok {
		return
	}
	rec.ReplaceValues(snap)
}

// Forget drops the record's snapshot.
func (t *Tracker) Forget(rec *entity.Record) {
	delete(t.snaps, rec)
}
