package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/zentity-io/zentity/pkg/entity"
)

// columnType maps a field kind to its SQLite storage class. Times are
// stored as RFC 3339 text, bools as integers.
func columnType(kind entity.Kind) string {
	switch kind {
	case entity.KindInt, entity.KindBool:
		return "INTEGER"
	case entity.KindFloat:
		return "REAL"
	case entity.KindBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// CreateTableSQL generates the CREATE TABLE statement for one
// descriptor, including primary-key and foreign-key clauses.
func CreateTableSQL(schema *entity.Schema, desc *entity.Descriptor) (string, error) {
	var defs []string
	for i := range desc.Fields {
		f := &desc.Fields[i]
		def := quoteIdent(f.Column) + " " + columnType(f.Kind)
		if !f.Nullable && !f.PrimaryKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	keys := desc.KeyFields()
	keyCols := make([]string, len(keys))
	for i, f := range keys {
		keyCols[i] = quoteIdent(f.Column)
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(keyCols, ", ")+")")

	for i := range desc.Relationships {
		rel := &desc.Relationships[i]
		if rel.Cardinality != entity.ToOne {
			continue
		}
		target, err := schema.Lookup(rel.Target)
		if err != nil {
			return "", err
		}
		fk, err := desc.Field(rel.ForeignKey)
		if err != nil {
			return "", err
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdent(fk.Column), quoteIdent(target.Table),
			quoteIdent(target.KeyFields()[0].Column)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		quoteIdent(desc.Table), strings.Join(defs, ",\n    ")), nil
}

// CreateTables creates the tables for every descriptor in the schema.
// The schema must be frozen. Existing tables are left untouched.
func (d *Driver) CreateTables(ctx context.Context, schema *entity.Schema) error {
	if !schema.Frozen() {
		return entity.ErrSchemaNotFrozen
	}
	for _, desc := range schema.Types() {
		ddl, err := CreateTableSQL(schema, desc)
		if err != nil {
			return err
		}
		if _, err := d.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", desc.Table, err)
		}
	}
	return nil
}
