// Package entity defines the static metadata model of the IO layer:
// descriptors for entity types, fields, and relationships, the schema
// registry, generic records carrying field values, identity keys, and
// the standard errors shared by all layers.
package entity

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind is the semantic type of a field value. Values are normalized to
// one canonical Go representation per kind before storage or comparison.
type Kind int

const (
	KindString Kind = iota // string
	KindInt                // int64
	KindFloat              // float64
	KindBool               // bool
	KindTime               // time.Time
	KindBytes              // []byte
)

// kindNames maps kinds to their display names.
var kindNames = map[Kind]string{
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindTime:   "time",
	KindBytes:  "bytes",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field describes one column-backed field of an entity type.
type Field struct {
	Name       string // Field name, unique within the descriptor.
	Column     string // Storage column. Defaults to snake_case of Name.
	Kind       Kind   // Semantic type.
	Nullable   bool   // Whether nil is a legal value.
	PrimaryKey bool   // Whether the field is part of the primary key.
}

// Cardinality distinguishes to-one from to-many relationships.
type Cardinality int

const (
	ToOne Cardinality = iota
	ToMany
)

func (c Cardinality) String() string {
	if c == ToMany {
		return "to-many"
	}
	return "to-one"
}

// RemovePolicy controls what happens to a member removed from a
// to-many collection at commit time.
type RemovePolicy int

const (
	// ClearKey nulls the member's foreign-key field.
	ClearKey RemovePolicy = iota
	// DeleteRow schedules the member row for deletion.
	DeleteRow
)

// Relationship describes a reference between two entity types.
//
// For a to-one relationship the ForeignKey names a field on this
// entity holding the target's primary key. For a to-many relationship
// the ForeignKey names the field on the target entity that refers back
// to this entity's primary key.
type Relationship struct {
	Name        string       // Relationship name, unique within the descriptor.
	Target      string       // Target entity type name.
	Cardinality Cardinality  // ToOne or ToMany.
	ForeignKey  string       // Field holding the reference (see above).
	OnRemove    RemovePolicy // To-many removal policy. Ignored for to-one.
}

// Descriptor is the immutable static metadata for one entity type.
// Build one with the literal syntax, then register it with a Schema;
// registration validates it and freezing the schema validates the
// cross-type relationship wiring.
type Descriptor struct {
	Name          string // Entity type name, e.g. "OrderLine".
	Table         string // Storage table. Defaults to snake_case of Name.
	Fields        []Field
	Relationships []Relationship

	fieldIndex map[string]int
	relIndex   map[string]int
	keyFields  []int
}

// TableName derives a snake_case storage table name from a CamelCase
// entity type name: "OrderLine" becomes "order_line". Consecutive
// uppercase runes form one word, so "CustomerID" becomes
// "customer_id" and "HTTPLog" becomes "http_log".
func TableName(typeName string) string {
	runes := []rune(typeName)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// init populates the lookup indexes and defaults. Called by
// Schema.Register; a descriptor is not usable before that.
func (d *Descriptor) init() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor: %w", ErrEmptyName)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("descriptor %s: %w", d.Name, ErrNoFields)
	}
	if d.Table == "" {
		d.Table = TableName(d.Name)
	}
	d.fieldIndex = make(map[string]int, len(d.Fields))
	d.keyFields = nil
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("descriptor %s: field %d: %w", d.Name, i, ErrEmptyName)
		}
		if _, dup := d.fieldIndex[f.Name]; dup {
			return fmt.Errorf("descriptor %s: field %s: %w", d.Name, f.Name, ErrDuplicateField)
		}
		if f.Column == "" {
			f.Column = TableName(f.Name)
		}
		d.fieldIndex[f.Name] = i
		if f.PrimaryKey {
			d.keyFields = append(d.keyFields, i)
		}
	}
	if len(d.keyFields) == 0 {
		return fmt.Errorf("descriptor %s: %w", d.Name, ErrNoPrimaryKey)
	}
	d.relIndex = make(map[string]int, len(d.Relationships))
	for i := range d.Relationships {
		r := &d.Relationships[i]
		if r.Name == "" {
			return fmt.Errorf("descriptor %s: relationship %d: %w", d.Name, i, ErrEmptyName)
		}
		if _, dup := d.relIndex[r.Name]; dup {
			return fmt.Errorf("descriptor %s: relationship %s: %w", d.Name, r.Name, ErrDuplicateRelationship)
		}
		if r.Target == "" || r.ForeignKey == "" {
			return fmt.Errorf("descriptor %s: relationship %s: %w", d.Name, r.Name, ErrIncompleteRelationship)
		}
		d.relIndex[r.Name] = i
	}
	return nil
}

// Field returns the field with the given name.
func (d *Descriptor) Field(name string) (*Field, error) {
	i, ok := d.fieldIndex[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", d.Name, name, ErrUnknownField)
	}
	return &d.Fields[i], nil
}

// Relationship returns the relationship with the given name.
func (d *Descriptor) Relationship(name string) (*Relationship, error) {
	i, ok := d.relIndex[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", d.Name, name, ErrUnknownRelationship)
	}
	return &d.Relationships[i], nil
}

// KeyFields returns the primary-key fields in declaration order.
func (d *Descriptor) KeyFields() []*Field {
	out := make([]*Field, len(d.keyFields))
	for i, idx := range d.keyFields {
		out[i] = &d.Fields[idx]
	}
	return out
}

// ValidateValues checks a full value map against the descriptor:
// every name must be a known field, values must match the field kind,
// and non-nullable fields must not be nil. Primary-key fields are
// exempt from the nil check so that generated keys can be assigned at
// commit time.
func (d *Descriptor) ValidateValues(values map[string]any) error {
	for name, v := range values {
		f, err := d.Field(name)
		if err != nil {
			return err
		}
		if v == nil {
			if !f.Nullable && !f.PrimaryKey {
				return fmt.Errorf("%s.%s: %w", d.Name, name, ErrNullValue)
			}
			continue
		}
		if _, err := Normalize(f.Kind, v); err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, name, err)
		}
	}
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Nullable || f.PrimaryKey {
			continue
		}
		if v, ok := values[f.Name]; !ok || v == nil {
			return fmt.Errorf("%s.%s: %w", d.Name, f.Name, ErrNullValue)
		}
	}
	return nil
}
