// Package memdriver implements an in-memory driver with a statement
// journal and failure injection. It backs the session tests and the
// memory backend of the factory; rows live in plain maps and
// transactions stage against a deep copy of the store.
package memdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zentity-io/zentity/pkg/driver"
)

// ErrInjected is the cause carried by failures armed with FailOn.
var ErrInjected = errors.New("injected failure")

// failKey identifies the statement shape a failure is armed for.
type failKey struct {
	op     driver.Op
	entity string
}

// Driver is the in-memory backend. Safe for concurrent use.
type Driver struct {
	mu      sync.Mutex
	tables  map[string][]driver.Row
	autoIDs map[string]int64
	journal []driver.Statement
	fails   map[failKey]bool
	closed  bool
}

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{
		tables:  make(map[string][]driver.Row),
		autoIDs: make(map[string]int64),
		fails:   make(map[failKey]bool),
	}
}

// Seed inserts rows directly into a table, bypassing the journal.
func (d *Driver) Seed(table string, rows ...driver.Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, row := range rows {
		d.tables[table] = append(d.tables[table], copyRow(row))
	}
}

// Rows returns a copy of a table's rows, for assertions.
func (d *Driver) Rows(table string) []driver.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.Row, len(d.tables[table]))
	for i, row := range d.tables[table] {
		out[i] = copyRow(row)
	}
	return out
}

// Journal returns the statements executed so far, in order, including
// statements inside transactions that later rolled back.
func (d *Driver) Journal() []driver.Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.Statement(nil), d.journal...)
}

// ClearJournal empties the journal.
func (d *Driver) ClearJournal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.journal = nil
}

// FailOn arms an injected failure for every statement matching the
// operation and entity name.
func (d *Driver) FailOn(op driver.Op, entity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fails[failKey{op, entity}] = true
}

// FailNone disarms all injected failures.
func (d *Driver) FailNone() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fails = make(map[failKey]bool)
}

// Execute runs one autocommitted statement.
func (d *Driver) Execute(ctx context.Context, stmt driver.Statement) (*driver.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.gate(ctx, stmt); err != nil {
		return nil, err
	}
	return apply(d.tables, d.autoIDs, stmt)
}

// Begin starts a transaction staged against a copy of the store.
func (d *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &driver.Error{Err: errors.New("driver is closed")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &driver.Error{Err: err}
	}
	return &tx{
		drv:     d,
		tables:  copyTables(d.tables),
		autoIDs: copyIDs(d.autoIDs),
	}, nil
}

// Close marks the driver closed. Data stays readable for assertions.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// gate journals the statement and applies context checks and armed
// failures. Callers hold d.mu.
func (d *Driver) gate(ctx context.Context, stmt driver.Statement) error {
	if d.closed {
		return &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: errors.New("driver is closed")}
	}
	d.journal = append(d.journal, stmt)
	if err := ctx.Err(); err != nil {
		return &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: err}
	}
	if d.fails[failKey{stmt.Op, stmt.Entity}] {
		return &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: ErrInjected}
	}
	return nil
}

// tx stages statements against copied tables; Commit swaps them in.
type tx struct {
	drv     *Driver
	tables  map[string][]driver.Row
	autoIDs map[string]int64
	done    bool
}

func (t *tx) Execute(ctx context.Context, stmt driver.Statement) (*driver.Result, error) {
	t.drv.mu.Lock()
	defer t.drv.mu.Unlock()
	if t.done {
		return nil, &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: errors.New("transaction finished")}
	}
	if err := t.drv.gate(ctx, stmt); err != nil {
		return nil, err
	}
	return apply(t.tables, t.autoIDs, stmt)
}

func (t *tx) Commit() error {
	t.drv.mu.Lock()
	defer t.drv.mu.Unlock()
	if t.done {
		return &driver.Error{Err: errors.New("transaction finished")}
	}
	t.done = true
	t.drv.tables = t.tables
	t.drv.autoIDs = t.autoIDs
	return nil
}

func (t *tx) Rollback() error {
	t.drv.mu.Lock()
	defer t.drv.mu.Unlock()
	t.done = true
	return nil
}

// apply executes a statement against the given table set.
func apply(tables map[string][]driver.Row, autoIDs map[string]int64, stmt driver.Statement) (*driver.Result, error) {
	switch stmt.Op {
	case driver.OpSelect:
		var rows []driver.Row
		for _, row := range tables[stmt.Table] {
			if matches(row, stmt.Where) {
				rows = append(rows, copyRow(row))
			}
		}
		return &driver.Result{Rows: rows}, nil

	case driver.OpInsert:
		row := make(driver.Row, len(stmt.Columns)+1)
		for i, col := range stmt.Columns {
			row[col] = stmt.Values[i]
		}
		res := &driver.Result{RowsAffected: 1}
		// Generate an integer key when the single key column is absent.
		if len(stmt.KeyColumns) == 1 {
			if _, ok := row[stmt.KeyColumns[0]]; !ok {
				autoIDs[stmt.Table]++
				row[stmt.KeyColumns[0]] = autoIDs[stmt.Table]
				res.LastInsertID = autoIDs[stmt.Table]
			}
		}
		tables[stmt.Table] = append(tables[stmt.Table], row)
		return res, nil

	case driver.OpUpdate:
		var n int64
		for _, row := range tables[stmt.Table] {
			if !matches(row, stmt.Where) {
				continue
			}
			for i, col := range stmt.Columns {
				row[col] = stmt.Values[i]
			}
			n++
		}
		return &driver.Result{RowsAffected: n}, nil

	case driver.OpDelete:
		rows := tables[stmt.Table]
		kept := rows[:0:0]
		var n int64
		for _, row := range rows {
			if matches(row, stmt.Where) {
				n++
				continue
			}
			kept = append(kept, row)
		}
		tables[stmt.Table] = kept
		return &driver.Result{RowsAffected: n}, nil
	}
	return nil, &driver.Error{Op: stmt.Op, Entity: stmt.Entity,
		Err: fmt.Errorf("unsupported operation %d", int(stmt.Op))}
}

// matches applies equality predicates to a row.
func matches(row driver.Row, where []driver.Predicate) bool {
	for _, p := range where {
		if !valueEqual(row[p.Column], p.Value) {
			return false
		}
	}
	return true
}

// valueEqual compares stored values with ==. Rows and predicates both
// carry canonical kinds, so no numeric widening is needed.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

func copyRow(row driver.Row) driver.Row {
	out := make(driver.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func copyTables(tables map[string][]driver.Row) map[string][]driver.Row {
	out := make(map[string][]driver.Row, len(tables))
	for name, rows := range tables {
		c := make([]driver.Row, len(rows))
		for i, row := range rows {
			c[i] = copyRow(row)
		}
		out[name] = c
	}
	return out
}

func copyIDs(ids map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(ids))
	for k, v := range ids {
		out[k] = v
	}
	return out
}
