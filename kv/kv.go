// Package kv defines the flat key-value contract the query cache persists
// its indices through, plus the concrete backends this repository ships:
// an in-memory store for tests and zero-configuration use, a BadgerDB-backed
// store for durability, and an encrypting wrapper for at-rest protection of
// cached payloads.
//
// The cache engine never assumes more than Get/Set/Delete: no iteration, no
// TTL, no atomic multi-key transactions — exactly the external-collaborator
// boundary the cache is specified against.
package kv

import "context"

// Record is the opaque, JSON-serializable value the cache stores under each
// key: query entries, graph entries, pattern entries, and related groups are
// all marshaled into one of these before being handed to a Store.
type Record map[string]any

// Store is the external key-value collaborator the cache engine is built
// against. Implementations need not support iteration, expiry, or atomic
// multi-key operations — the engine documents itself as non-atomic across
// keys and relies on none of that.
type Store interface {
	// Get returns the record at key, or ok=false if it doesn't exist.
	Get(ctx context.Context, key string) (value Record, ok bool, err error)
	// Set stores value at key, replacing any existing record.
	Set(ctx context.Context, key string, value Record) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
