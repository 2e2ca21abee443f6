package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zentity-io/zentity/pkg/driver"
)

// translate builds the SQL text and bind arguments for a statement.
// Binding uses `?` placeholders throughout.
func translate(stmt driver.Statement) (string, []any, error) {
	switch stmt.Op {
	case driver.OpSelect:
		return translateSelect(stmt)
	case driver.OpInsert:
		return translateInsert(stmt)
	case driver.OpUpdate:
		return translateUpdate(stmt)
	case driver.OpDelete:
		return translateDelete(stmt)
	}
	return "", nil, fmt.Errorf("unsupported operation %d", int(stmt.Op))
}

func translateSelect(stmt driver.Statement) (string, []any, error) {
	cols := "*"
	if len(stmt.Columns) > 0 {
		cols = strings.Join(quoteAll(stmt.Columns), ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s", cols, quoteIdent(stmt.Table))
	where, args := whereClause(stmt.Where)
	return query + where, args, nil
}

func translateInsert(stmt driver.Statement) (string, []any, error) {
	if len(stmt.Columns) == 0 {
		return "", nil, errors.New("insert with no columns")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(stmt.Columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(stmt.Table), strings.Join(quoteAll(stmt.Columns), ", "), placeholders)
	return query, encodeAll(stmt.Values), nil
}

func translateUpdate(stmt driver.Statement) (string, []any, error) {
	if len(stmt.Columns) == 0 {
		return "", nil, errors.New("update with no columns")
	}
	if len(stmt.Where) == 0 {
		return "", nil, errors.New("update with no key predicate")
	}
	sets := make([]string, len(stmt.Columns))
	for i, col := range stmt.Columns {
		sets[i] = quoteIdent(col) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s", quoteIdent(stmt.Table), strings.Join(sets, ", "))
	where, whereArgs := whereClause(stmt.Where)
	return query + where, append(encodeAll(stmt.Values), whereArgs...), nil
}

func translateDelete(stmt driver.Statement) (string, []any, error) {
	if len(stmt.Where) == 0 {
		return "", nil, errors.New("delete with no key predicate")
	}
	where, args := whereClause(stmt.Where)
	return "DELETE FROM " + quoteIdent(stmt.Table) + where, args, nil
}

// quoteIdent double-quotes an identifier so derived names that collide
// with SQL keywords, like table "order", stay valid.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = quoteIdent(name)
	}
	return out
}

// whereClause renders equality predicates. IS NULL handles nil
// values, which bind arguments cannot express.
func whereClause(preds []driver.Predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		if p.Value == nil {
			parts = append(parts, quoteIdent(p.Column)+" IS NULL")
			continue
		}
		parts = append(parts, quoteIdent(p.Column)+" = ?")
		args = append(args, encode(p.Value))
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// encode maps canonical field values to SQLite bind values: times
// become RFC 3339 strings, bools become 0/1.
func encode(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func encodeAll(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = encode(v)
	}
	return out
}
