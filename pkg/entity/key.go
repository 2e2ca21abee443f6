package entity

import "strings"

// keySep joins the components of a composite primary key. Unit
// separator, so printable key values never collide.
const keySep = "\x1f"

// Key identifies one entity instance: the type name plus the canonical
// string form of its primary-key value tuple. At most one managed
// record exists per Key within a session.
type Key struct {
	Entity string
	ID     string
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Entity == "" && k.ID == ""
}

func (k Key) String() string {
	return k.Entity + "#" + strings.ReplaceAll(k.ID, keySep, "/")
}

// MakeKey builds a Key from primary-key values in the descriptor's
// key-field order. Returns ErrMissingKey when a component is unset.
func MakeKey(d *Descriptor, values map[string]any) (Key, error) {
	fields := d.KeyFields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		s, err := formatKeyValue(f.Kind, values[f.Name])
		if err != nil {
			return Key{}, err
		}
		parts = append(parts, s)
	}
	return Key{Entity: d.Name, ID: strings.Join(parts, keySep)}, nil
}
