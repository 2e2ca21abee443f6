package entity

import (
	"fmt"
	"sort"
)

// Schema is the registry of entity descriptors. Descriptors are added
// with Register and the schema is then frozen, which validates the
// cross-type relationship wiring and makes the registry immutable.
// Sessions require a frozen schema.
type Schema struct {
	types  map[string]*Descriptor
	frozen bool
}

// NewSchema creates an empty, unfrozen schema.
func NewSchema() *Schema {
	return &Schema{types: make(map[string]*Descriptor)}
}

// Register validates a descriptor and adds it to the schema.
func (s *Schema) Register(d *Descriptor) error {
	if s.frozen {
		return fmt.Errorf("register %s: %w", d.Name, ErrSchemaFrozen)
	}
	if err := d.init(); err != nil {
		return err
	}
	if _, dup := s.types[d.Name]; dup {
		return fmt.Errorf("register %s: %w", d.Name, ErrDuplicateEntity)
	}
	s.types[d.Name] = d
	return nil
}

// Freeze validates relationships across types and seals the schema.
// For each to-one relationship the foreign-key field must exist on the
// owning descriptor and match the kind of the target's primary key;
// for to-many the foreign-key field must exist on the target.
// Idempotent once successful.
func (s *Schema) Freeze() error {
	if s.frozen {
		return nil
	}
	for _, d := range s.types {
		for i := range d.Relationships {
			r := &d.Relationships[i]
			target, ok := s.types[r.Target]
			if !ok {
				return fmt.Errorf("%s.%s -> %s: %w", d.Name, r.Name, r.Target, ErrUnknownEntity)
			}
			keys := target.KeyFields()
			owner := d
			if r.Cardinality == ToMany {
				// Inverse side: the back reference lives on the target
				// and points at this descriptor's key.
				owner = target
				keys = d.KeyFields()
			}
			fk, err := owner.Field(r.ForeignKey)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", d.Name, r.Name, err)
			}
			if len(keys) != 1 {
				return fmt.Errorf("%s.%s: composite key on %s: %w",
					d.Name, r.Name, r.Target, ErrIncompleteRelationship)
			}
			if fk.Kind != keys[0].Kind {
				return fmt.Errorf("%s.%s: foreign key %s is %s, target key is %s: %w",
					d.Name, r.Name, fk.Name, fk.Kind, keys[0].Kind, ErrTypeMismatch)
			}
		}
	}
	s.frozen = true
	return nil
}

// Frozen reports whether Freeze has completed.
func (s *Schema) Frozen() bool { return s.frozen }

// Lookup returns the descriptor registered under the given name.
func (s *Schema) Lookup(name string) (*Descriptor, error) {
	d, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownEntity)
	}
	return d, nil
}

// Types returns all registered descriptors sorted by name.
func (s *Schema) Types() []*Descriptor {
	out := make([]*Descriptor, 0, len(s.types))
	for _, d := range s.types {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
