// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// DefaultBadgerGCInterval is how often the value log is compacted.
const DefaultBadgerGCInterval = 10 * time.Minute

// BadgerStore is an on-disk Store for single-node deployments whose cache
// should survive restarts. Expiry is native to badger.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// OpenBadgerStore opens (or creates) a store in dir. A non-positive
// gcInterval uses DefaultBadgerGCInterval.
func OpenBadgerStore(dir string, gcInterval time.Duration, logger zerolog.Logger) (*BadgerStore, error) {
	if dir == "" {
		return nil, errors.New("badger cache: directory is required")
	}
	if gcInterval <= 0 {
		gcInterval = DefaultBadgerGCInterval
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger cache: open %s: %w", dir, err)
	}

	s := &BadgerStore{db: db, logger: logger, stop: make(chan struct{})}
	s.wg.Add(1)
	go s.runGC(gcInterval)
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// ErrNoRewrite just means nothing was worth compacting.
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
					s.logger.Warn().Err(err).Msg("badger value log gc failed")
				}
				break
			}
		case <-s.stop:
			return
		}
	}
}

// Get retrieves a value; expired keys are misses.
func (s *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("badger get %q: %w", key, err)
	}
	return string(val), true, nil
}

// Set stores value; ttl <= 0 keeps it until deleted.
func (s *BadgerStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := badger.NewEntry([]byte(key), []byte(value))
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	if err := s.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) }); err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}
	return nil
}

// Exists checks key presence without copying the value.
func (s *BadgerStore) Exists(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger exists %q: %w", key, err)
	}
	return true, nil
}

// Delete removes keys in one transaction.
func (s *BadgerStore) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// HealthCheck fails once the store is closed.
func (s *BadgerStore) HealthCheck(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger cache is closed")
	}
	return nil
}

// Close stops value log GC and closes the database.
func (s *BadgerStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.db.Close()
}
