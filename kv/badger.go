package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a durable Store backed by BadgerDB. Records are JSON-encoded
// before being handed to the underlying transaction, mirroring the
// encode/decode-at-the-boundary discipline the rest of this module's storage
// engine uses for its own node and edge records.
type Badger struct {
	db     *badger.DB
	prefix []byte
	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures a Badger store.
type BadgerOptions struct {
	// DataDir is the directory for storing data files. Required unless
	// InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Data is not persisted;
	// useful for tests that want durable-store semantics without disk I/O.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool

	// KeyPrefix is prepended to every key this Badger instance reads or
	// writes, namespacing its records within the BadgerDB directory. One
	// prefix applies to every record kind the store holds (query entries,
	// graph entries, pattern entries, related groups); kinds are not given
	// prefixes of their own.
	KeyPrefix string

	// Logger receives BadgerDB's internal logging. If nil, BadgerDB logs
	// nothing.
	Logger badger.Logger
}

// NewBadger opens (or creates) a BadgerDB-backed Store at opts.DataDir.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &Badger{db: db, prefix: []byte(opts.KeyPrefix)}, nil
}

func (b *Badger) fullKey(key string) []byte {
	return append(append([]byte{}, b.prefix...), []byte(key)...)
}

// Get returns the record at key, or ok=false if absent.
func (b *Badger) Get(_ context.Context, key string) (Record, bool, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, false, ErrClosed
	}
	b.mu.RUnlock()

	var value Record
	found := true
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.fullKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, &value)
		})
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value at key, replacing any existing record.
func (b *Badger) Set(_ context.Context, key string, value Record) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.mu.RUnlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.fullKey(key), data)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (b *Badger) Delete(_ context.Context, key string) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.mu.RUnlock()

	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(b.fullKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close releases the underlying BadgerDB handle. Safe to call more than
// once.
func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
