// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists state in an embedded BadgerDB. Badger transactions
// are serializable, so SetNX and Update detect concurrent writers through
// badger.ErrConflict and retry.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a database at path. An empty path opens an
// in-memory database.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// readValue returns the current value, or nil and false when the key is absent.
func readValue(txn *badger.Txn, key string) ([]byte, bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// retry runs fn in a fresh read-write transaction until it commits without
// a conflict.
func (s *BadgerStore) retry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("kvstore: badger transaction conflicted %d times", maxUpdateRetries)
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		val, ok, err := readValue(txn, key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		out = val
		return nil
	})
	return out, err
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.retry(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
}

func (s *BadgerStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var stored bool
	err := s.retry(ctx, func(txn *badger.Txn) error {
		stored = false
		_, exists, err := readValue(txn, key)
		if err != nil || exists {
			return err
		}
		if err := txn.SetEntry(newEntry(key, value, ttl)); err != nil {
			return err
		}
		stored = true
		return nil
	})
	return stored, err
}

func (s *BadgerStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	var deleted bool
	err := s.retry(ctx, func(txn *badger.Txn) error {
		deleted = false
		val, exists, err := readValue(txn, key)
		if err != nil || !exists || !bytes.Equal(val, expected) {
			return err
		}
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.retry(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	err := s.retry(ctx, func(txn *badger.Txn) error {
		current, exists, err := readValue(txn, key)
		if err != nil {
			return err
		}
		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		return txn.SetEntry(newEntry(key, next, ttl))
	})
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	return err
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
