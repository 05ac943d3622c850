// Package config loads qcached's configuration from a YAML file with
// environment-variable overrides, following the same precedence the rest
// of this module's teacher stack uses for its own services: defaults,
// then an optional file, then the environment wins last.
//
// Environment Variables:
//
//	QCACHED_DATA_DIR        - Badger data directory (default: ./data)
//	QCACHED_IN_MEMORY       - Use an in-memory store instead of Badger (default: false)
//	QCACHED_ENCRYPT         - Wrap the backing store in AES-256-GCM (default: false)
//	QCACHED_PASSPHRASE      - Passphrase used to derive the encryption key (required if QCACHED_ENCRYPT=true)
//	QCACHED_KEY_PREFIX      - Key prefix applied to every Badger key (default: "qcache:")
//	QCACHED_SYNC_WRITES     - fsync every Badger write (default: false)
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config controls how the cache's backing store is constructed.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	Encrypt    bool   `yaml:"encrypt"`
	Passphrase string `yaml:"passphrase"`
	KeyPrefix  string `yaml:"key_prefix"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// DefaultConfig returns the configuration qcached runs with when no file or
// environment overrides are present: a Badger store rooted at ./data, no
// encryption.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   "./data",
		KeyPrefix: "qcache:",
	}
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigOrDefault loads config from file, or returns defaults if the
// file doesn't exist.
func LoadConfigOrDefault(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// LoadFromEnvOrFile loads config from filePath (or defaults, if filePath is
// empty or unreadable) and then applies environment overrides on top.
// Environment variables always take precedence over file settings.
func LoadFromEnvOrFile(filePath string) *Config {
	var cfg *Config
	if filePath != "" {
		cfg = LoadConfigOrDefault(filePath)
	} else {
		cfg = DefaultConfig()
	}
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if dir := os.Getenv("QCACHED_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if val := os.Getenv("QCACHED_IN_MEMORY"); val != "" {
		cfg.InMemory = parseBool(val, cfg.InMemory)
	}
	if val := os.Getenv("QCACHED_ENCRYPT"); val != "" {
		cfg.Encrypt = parseBool(val, cfg.Encrypt)
	}
	if pass := os.Getenv("QCACHED_PASSPHRASE"); pass != "" {
		cfg.Passphrase = pass
	}
	if prefix := os.Getenv("QCACHED_KEY_PREFIX"); prefix != "" {
		cfg.KeyPrefix = prefix
	}
	if val := os.Getenv("QCACHED_SYNC_WRITES"); val != "" {
		cfg.SyncWrites = parseBool(val, cfg.SyncWrites)
	}
}

// parseBool parses a boolean from string with a default value.
func parseBool(s string, defaultVal bool) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// Validate reports a configuration that would fail to build a store: an
// encrypted store always needs a passphrase to derive its key from.
func (c *Config) Validate() error {
	if c.Encrypt && c.Passphrase == "" {
		return fmt.Errorf("config: QCACHED_PASSPHRASE is required when encryption is enabled")
	}
	return nil
}

