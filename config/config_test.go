package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparqlcache/qcache/kv"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "qcache:", cfg.KeyPrefix)
	assert.False(t, cfg.InMemory)
	assert.False(t, cfg.Encrypt)
}

func TestLoadConfig_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qcached.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/qcache
in_memory: true
key_prefix: "custom:"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/qcache", cfg.DataDir)
	assert.True(t, cfg.InMemory)
	assert.Equal(t, "custom:", cfg.KeyPrefix)
}

func TestLoadConfigOrDefault_MissingFileReturnsDefaults(t *testing.T) {
	cfg := LoadConfigOrDefault("/no/such/path/qcached.yaml")
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromEnvOrFile_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qcached.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`data_dir: /from/file`), 0o644))

	t.Setenv("QCACHED_DATA_DIR", "/from/env")
	t.Setenv("QCACHED_IN_MEMORY", "true")

	cfg := LoadFromEnvOrFile(path)
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.True(t, cfg.InMemory)
}

func TestValidate_EncryptWithoutPassphraseErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encrypt = true
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_EncryptWithPassphraseOK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encrypt = true
	cfg.Passphrase = "correct horse battery staple"
	require.NoError(t, cfg.Validate())
}

func TestBuildStore_InMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InMemory = true

	store, err := cfg.BuildStore()
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestBuildStore_EncryptedInMemoryRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.Encrypt = true
	cfg.Passphrase = "correct horse battery staple"

	store, err := cfg.BuildStore()
	require.NoError(t, err)
	require.NotNil(t, store)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k1", kv.Record{"foo": "bar"}))
	got, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bar", got["foo"])
}

func TestBuildStore_EncryptWithoutPassphraseFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.Encrypt = true

	_, err := cfg.BuildStore()
	require.Error(t, err)
}
