// Package storage persists engine state between runs in a Badger key-value
// database. Keys are namespaced as "<prefix>:<path>".
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is a thin string-keyed KV over badger.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) a database in dir.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return open(opts)
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts)
}

func open(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Get returns the value for key. A missing key is (nil, false, nil).
func (s *BadgerStore) Get(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return out, true, nil
}

// Set writes key.
func (s *BadgerStore) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// Scan calls fn for every key starting with prefix, with the prefix stripped.
func (s *BadgerStore) Scan(prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(strings.TrimPrefix(string(item.Key()), prefix), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplacePrefix makes the keys under prefix exactly match entries: existing
// keys absent from entries are deleted. Uses a write batch so large maps do
// not hit transaction size limits.
func (s *BadgerStore) ReplacePrefix(prefix string, entries map[string][]byte) error {
	var stale []string
	err := s.Scan(prefix, func(key string, _ []byte) error {
		if _, ok := entries[key]; !ok {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: scan %s: %w", prefix, err)
	}

	wb := s.db.NewWriteBatch()
	for _, key := range stale {
		if err := wb.Delete([]byte(prefix + key)); err != nil {
			wb.Cancel()
			return fmt.Errorf("storage: batch delete: %w", err)
		}
	}
	for key, val := range entries {
		if err := wb.Set([]byte(prefix+key), val); err != nil {
			wb.Cancel()
			return fmt.Errorf("storage: batch set: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("storage: flush: %w", err)
	}
	return nil
}
