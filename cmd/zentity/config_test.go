package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zentity-io/zentity/pkg/entity"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, entity.BackendSQLite, cfg.Backend)
	assert.Equal(t, ".zentity-db", cfg.DataDir)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := "backend: memory\ndata_dir: /tmp/zentity-test\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := loadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, entity.BackendMemory, cfg.Backend)
	assert.Equal(t, "/tmp/zentity-test", cfg.DataDir)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("backend: mongo\n"), 0o644))

	_, err := loadConfig(dir)
	assert.ErrorIs(t, err, entity.ErrBackendUnknown)
}

func TestEnsureDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ensureDefaultConfigFile(dir))

	path := filepath.Join(dir, "config.yaml")
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(first), "backend: sqlite")

	// A second run leaves an existing file alone.
	require.NoError(t, os.WriteFile(path, []byte("backend: memory\n"), 0o644))
	require.NoError(t, ensureDefaultConfigFile(dir))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "backend: memory\n", string(second))
}

func TestResolveDataDirPrecedence(t *testing.T) {
	assert.Equal(t, ".zentity-db", resolveDataDir(""))
	assert.Equal(t, "/configured", resolveDataDir("/configured"))

	flagDataDir = "/flagged"
	defer func() { flagDataDir = "" }()
	assert.Equal(t, "/flagged", resolveDataDir("/configured"))
}
