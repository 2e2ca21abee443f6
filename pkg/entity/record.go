package entity

import "fmt"

// State is the lifecycle state of a record within a session.
type State int

const (
	Transient State = iota // created, not yet registered
	Managed                // owned by a session and tracked
	Deleted                // scheduled for deletion, tracked until commit
	Detached               // no longer owned by any session
)

var stateNames = map[State]string{
	Transient: "transient",
	Managed:   "managed",
	Deleted:   "deleted",
	Detached:  "detached",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FieldDelta is one changed field: the snapshot value and the current
// value. Produced by the change tracker at diff time.
type FieldDelta struct {
	Field string
	Old   any
	New   any
}

// relSlot is the explicit loaded/unloaded state of a to-one
// relationship on a record. Unloaded slots trigger a resolver query on
// first access; loaded slots answer from the cached reference.
type relSlot struct {
	loaded bool
	target *Record
}

// Record is one entity instance: a descriptor reference, the current
// field values, a lifecycle state, and per-relationship slots. Records
// are created Transient and become Managed when registered with or
// loaded by a session. A Record is not safe for concurrent mutation;
// it is confined to its owning session's execution context.
type Record struct {
	desc   *Descriptor
	state  State
	values map[string]any
	rels   map[string]*relSlot
}

// NewRecord creates a Transient record of the given type with all
// fields unset.
func NewRecord(d *Descriptor) *Record {
	return &Record{
		desc:   d,
		state:  Transient,
		values: make(map[string]any, len(d.Fields)),
		rels:   make(map[string]*relSlot, len(d.Relationships)),
	}
}

// Descriptor returns the record's entity type metadata.
func (r *Record) Descriptor() *Descriptor { return r.desc }

// State returns the record's lifecycle state.
func (r *Record) State() State { return r.state }

// SetState transitions the record's lifecycle state. Sessions own
// these transitions; application code should not call this.
func (r *Record) SetState(s State) { r.state = s }

// Get returns the current value of a field, or an error for an
// unknown field name. Unset fields read as nil.
func (r *Record) Get(field string) (any, error) {
	if _, err := r.desc.Field(field); err != nil {
		return nil, err
	}
	return r.values[field], nil
}

// Set assigns a field value after normalizing it to the field's kind.
// A nil value on a non-nullable, non-key field is rejected.
func (r *Record) Set(field string, v any) error {
	f, err := r.desc.Field(field)
	if err != nil {
		return err
	}
	if v == nil {
		if !f.Nullable && !f.PrimaryKey {
			return fmt.Errorf("%s.%s: %w", r.desc.Name, field, ErrNullValue)
		}
		r.values[field] = nil
		return nil
	}
	norm, err := Normalize(f.Kind, v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", r.desc.Name, field, err)
	}
	r.values[field] = norm
	return nil
}

// SetAll assigns a map of field values via Set.
func (r *Record) SetAll(values map[string]any) error {
	for name, v := range values {
		if err := r.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Key builds the record's identity key from its current primary-key
// values. Returns ErrMissingKey while the key is unassigned.
func (r *Record) Key() (Key, error) {
	return MakeKey(r.desc, r.values)
}

// Values returns an independent copy of the current field values.
// Byte-slice values are copied so the snapshot cannot alias the live
// record.
func (r *Record) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		if b, ok := v.([]byte); ok {
			c := make([]byte, len(b))
			copy(c, b)
			out[k] = c
			continue
		}
		out[k] = v
	}
	return out
}

// ReplaceValues overwrites all field values with the given map. Used
// by sessions to restore snapshots on rollback.
func (r *Record) ReplaceValues(values map[string]any) {
	r.values = make(map[string]any, len(values))
	for k, v := range values {
		r.values[k] = v
	}
}

// Related returns the cached target of a to-one relationship and
// whether the slot has been loaded.
func (r *Record) Related(rel string) (*Record, bool) {
	s, ok := r.rels[rel]
	if !ok || !s.loaded {
		return nil, false
	}
	return s.target, true
}

// SetRelated caches a to-one relationship target, marking the slot
// loaded. A nil target records a resolved-to-nothing reference.
func (r *Record) SetRelated(rel string, target *Record) {
	r.rels[rel] = &relSlot{loaded: true, target: target}
}

// ClearRelated resets a relationship slot to unloaded.
func (r *Record) ClearRelated(rel string) {
	delete(r.rels, rel)
}
