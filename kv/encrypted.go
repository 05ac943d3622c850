package kv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sparqlcache/qcache/internal/aesgcm"
)

// Encrypted wraps a Store, sealing every record's JSON encoding with
// AES-256-GCM before it reaches the inner Store and opening it again on
// read. The inner Store never observes plaintext — a BadgerDB directory
// backing an Encrypted store holds only ciphertext on disk.
type Encrypted struct {
	inner  Store
	sealer *aesgcm.Sealer
}

// NewEncrypted wraps inner with sealer.
func NewEncrypted(inner Store, sealer *aesgcm.Sealer) *Encrypted {
	return &Encrypted{inner: inner, sealer: sealer}
}

// Get returns the decrypted record at key, or ok=false if absent.
func (e *Encrypted) Get(ctx context.Context, key string) (Record, bool, error) {
	wrapped, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	sealed, ok := wrapped["sealed"].(string)
	if !ok {
		return nil, false, fmt.Errorf("kv: encrypted record at %q missing sealed payload", key)
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, false, fmt.Errorf("kv: decoding sealed payload at %q: %w", key, err)
	}
	plaintext, err := e.sealer.Open(data)
	if err != nil {
		return nil, false, fmt.Errorf("kv: decrypting record at %q: %w", key, err)
	}
	var value Record
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return nil, false, fmt.Errorf("kv: decoding decrypted record at %q: %w", key, err)
	}
	return value, true, nil
}

// Set encrypts value and stores it at key.
func (e *Encrypted) Set(ctx context.Context, key string, value Record) error {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encoding record for %q: %w", key, err)
	}
	sealed, err := e.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("kv: encrypting record for %q: %w", key, err)
	}
	wrapped := Record{"sealed": base64.StdEncoding.EncodeToString(sealed)}
	return e.inner.Set(ctx, key, wrapped)
}

// Delete removes key from the inner Store.
func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}
