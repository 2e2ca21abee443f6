// Config loading for the zentity CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/zentity-io/zentity/pkg/entity"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend = "backend"
	cfgKeyDataDir = "data_dir"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Zentity CLI configuration

# Backend selection: sqlite or memory
backend: sqlite

# Data directory (optional; overridable by --data-dir flag)
# data_dir:
`

// loadConfig reads config.yaml from the config directory using Viper
// and resolves it to an entity.Config. A missing config.yaml is not
// an error; defaults apply.
func loadConfig(configDir string) (entity.Config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, entity.BackendSQLite)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return entity.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := entity.Config{
		Backend: v.GetString(cfgKeyBackend),
		DataDir: resolveDataDir(v.GetString(cfgKeyDataDir)),
	}
	if err := cfg.Validate(); err != nil {
		return entity.Config{}, err
	}
	return cfg, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile writes a default config.yaml on first run.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileName+"."+configFileType)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
