// Package sqlite provides the public factory for the SQLite driver
// backend, keeping the implementation internal.
package sqlite

import (
	"context"

	"github.com/zentity-io/zentity/internal/sqlite"
	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
)

// Driver is the SQLite implementation of the driver contract, with
// DDL generation on top.
type Driver interface {
	driver.Driver

	// CreateTables creates the storage tables for a frozen schema.
	CreateTables(ctx context.Context, schema *entity.Schema) error
}

// Open creates the SQLite driver for the given config.
//
// Example:
//
//	drv, err := sqlite.Open(entity.Config{
//	    Backend: entity.BackendSQLite,
//	    DataDir: ".zentity",
//	})
//	defer drv.Close()
func Open(cfg entity.Config) (Driver, error) {
	return sqlite.Open(cfg)
}
