// Package badgerstore persists the application snapshot in an
// embedded BadgerDB instance under a single fixed key.
package badgerstore

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// snapshotKey is the one record this store ever writes. Bump the
// suffix only for incompatible snapshot layouts.
const snapshotKey = "core/snapshot/v1"

// Config controls the embedded database.
type Config struct {
	// Path is the directory for database files. Ignored when
	// InMemory is set.
	Path string
	// InMemory disables disk persistence. Used in tests.
	InMemory bool
	// SyncWrites trades write latency for durability on every
	// mutation.
	SyncWrites bool
}

// Store is a ports.SnapshotStore backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Open creates or opens the snapshot database.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	return &Store{db: db}, nil
}

// Load reads the persisted snapshot. ok is false when no snapshot has
// been written yet.
func (s *Store) Load() ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, true, nil
}

// Save replaces the persisted snapshot in a single transaction, so a
// partially written snapshot is never observable.
func (s *Store) Save(data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
