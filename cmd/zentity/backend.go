// Backend selection for the zentity CLI.
package main

import (
	"fmt"

	"github.com/zentity-io/zentity/internal/memdriver"
	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
	"github.com/zentity-io/zentity/pkg/sqlite"
)

// openDriver opens the driver named by the config.
func openDriver(cfg entity.Config) (driver.Driver, error) {
	switch cfg.Backend {
	case entity.BackendSQLite:
		return sqlite.Open(cfg)
	case entity.BackendMemory:
		return memdriver.New(), nil
	default:
		return nil, fmt.Errorf("backend %q: %w", cfg.Backend, entity.ErrBackendUnknown)
	}
}
