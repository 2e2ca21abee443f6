// Package sqlite implements the SQLite driver adapter over
// database/sql and modernc.org/sqlite. It translates the core's
// opaque statements into SQL, generates DDL from entity descriptors,
// and exposes transactions with the driver contract semantics.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
)

// databaseFile is the SQLite file name inside the data directory.
const databaseFile = "zentity.db"

// Driver is the SQLite backend. Open one with Open; it is safe for
// concurrent use, subject to SQLite's own writer serialization.
type Driver struct {
	db *sql.DB
}

// Open validates the config, creates the data directory if needed,
// and opens the database with foreign keys enforced.
func Open(cfg entity.Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dataDir, databaseFile))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return &Driver{db: db}, nil
}

// Execute runs one autocommitted statement.
func (d *Driver) Execute(ctx context.Context, stmt driver.Statement) (*driver.Result, error) {
	return execute(ctx, d.db, stmt)
}

// Begin starts a database transaction.
func (d *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &driver.Error{Err: err}
	}
	return &tx{tx: sqlTx}, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

// execer is the common surface of *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) Execute(ctx context.Context, stmt driver.Statement) (*driver.Result, error) {
	return execute(ctx, t.tx, stmt)
}

func (t *tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return &driver.Error{Err: err}
	}
	return nil
}

func (t *tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return &driver.Error{Err: err}
	}
	return nil
}

// execute translates and runs one statement against db or tx.
func execute(ctx context.Context, ex execer, stmt driver.Statement) (*driver.Result, error) {
	query, args, err := translate(stmt)
	if err != nil {
		return nil, &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: err}
	}

	if stmt.Op == driver.OpSelect {
		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: err}
		}
		defer rows.Close()
		out, err := scan(rows)
		if err != nil {
			return nil, &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: err}
		}
		return &driver.Result{Rows: out}, nil
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &driver.Error{Op: stmt.Op, Entity: stmt.Entity, Err: err}
	}
	result := &driver.Result{}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	if stmt.Op == driver.OpInsert {
		if id, err := res.LastInsertId(); err == nil {
			result.LastInsertID = id
		}
	}
	return result, nil
}

// scan reads all rows into column-keyed maps.
func scan(rows *sql.Rows) ([]driver.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []driver.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(driver.Row, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
