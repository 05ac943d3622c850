package config

import (
	"fmt"

	"github.com/sparqlcache/qcache/internal/aesgcm"
	"github.com/sparqlcache/qcache/kv"
)

// staticSalt is the PBKDF2 salt used to derive qcached's at-rest key. A
// fixed, non-secret salt is sufficient here: it only needs to make the
// derived key specific to this module, not to defend against rainbow
// tables across unrelated deployments (that job belongs to Passphrase).
var staticSalt = []byte("qcache/internal/aesgcm/v1")

// BuildStore constructs the kv.Store described by cfg: an in-memory map, a
// BadgerDB directory, or either wrapped in AES-256-GCM when Encrypt is set.
func (c *Config) BuildStore() (kv.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var base kv.Store
	if c.InMemory {
		base = kv.NewMemory()
	} else {
		badgerStore, err := kv.NewBadger(kv.BadgerOptions{
			DataDir:    c.DataDir,
			InMemory:   false,
			SyncWrites: c.SyncWrites,
			KeyPrefix:  c.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("config: opening badger store at %q: %w", c.DataDir, err)
		}
		base = badgerStore
	}

	if !c.Encrypt {
		return base, nil
	}

	key := aesgcm.DeriveKey(c.Passphrase, staticSalt, aesgcm.DefaultIterations)
	sealer, err := aesgcm.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("config: building sealer: %w", err)
	}
	return kv.NewEncrypted(base, sealer), nil
}
