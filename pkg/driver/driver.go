// Package driver defines the narrow contract between the IO-layer
// core and a storage backend. Statements are opaque to the core beyond
// the operation kind, target entity, field values, and key predicates;
// dialect translation is the driver's responsibility.
package driver

import (
	"context"
	"fmt"
)

// Op is the kind of operation a statement performs.
type Op int

const (
	OpSelect Op = iota
	OpInsert
	OpUpdate
	OpDelete
)

var opNames = map[Op]string{
	OpSelect: "select",
	OpInsert: "insert",
	OpUpdate: "update",
	OpDelete: "delete",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Predicate is one equality condition in a statement's where clause.
type Predicate struct {
	Column string
	Value  any
}

// Statement is one storage operation. Columns and Values are parallel
// slices carrying the written fields of inserts and updates; Where
// carries key predicates and filters. KeyColumns names the
// primary-key columns so drivers that generate keys can report or
// backfill them.
type Statement struct {
	Op         Op
	Entity     string // entity type name, for diagnostics
	Table      string // storage table
	Columns    []string
	Values     []any
	Where      []Predicate
	KeyColumns []string
}

// Row is one result row keyed by column name.
type Row map[string]any

// Result is the outcome of one executed statement.
type Result struct {
	Rows         []Row // select only
	LastInsertID int64 // insert only, when the backend generates keys
	RowsAffected int64
}

// Driver executes statements against a backend. Execute outside a
// transaction autocommits. Implementations must honor context
// cancellation; the core propagates it as a load or commit failure
// rather than retrying.
type Driver interface {
	Execute(ctx context.Context, stmt Statement) (*Result, error)
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one backend transaction. Either Commit or Rollback must be
// called exactly once.
type Tx interface {
	Execute(ctx context.Context, stmt Statement) (*Result, error)
	Commit() error
	Rollback() error
}

// Error wraps a backend failure with the statement context it
// occurred in. All driver implementations return *Error.
type Error struct {
	Op     Op
	Entity string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("driver: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
