// SPDX-License-Identifier: MIT

// Package cache provides the shared key/value store used by every cache-aside
// layer: string values with a per-key TTL.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the shared cache. Values are text; binary payloads go through
// EncodeBytes/DecodeBytes. A ttl <= 0 stores the value without expiry.
// Implementations are safe for concurrent use. Callers treat errors as misses:
// the cache is never authoritative.
type Store interface {
	// Get returns the value and true when present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Exists reports whether key is present without transferring the value.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// entry represents a cached value with expiration time.
type entry struct {
	value      string
	expiration time.Time // zero means no expiry
}

func (e *entry) isExpired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// MemoryStore is an in-process Store, used for single-instance deployments
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
	janitor *janitor
}

// NewMemoryStore creates an in-memory store. A positive cleanupInterval
// starts a janitor goroutine that drops expired entries; call Stop to end it.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}

	if cleanupInterval > 0 {
		s.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go s.janitor.run(s)
	}

	return s
}

// Get retrieves a value from the store.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, found := s.entries[key]
	if !found || e.isExpired(s.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores a value.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{value: value}
	if ttl > 0 {
		e.expiration = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Exists reports whether an unexpired value is stored under key.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Delete removes keys.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// deleteExpired removes all expired entries and returns how many were dropped.
func (s *MemoryStore) deleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for key, e := range s.entries {
		if e.isExpired(now) {
			delete(s.entries, key)
			count++
		}
	}
	return count
}

// Stop stops the background cleanup goroutine.
func (s *MemoryStore) Stop() {
	if s.janitor != nil {
		s.janitor.once.Do(func() { close(s.janitor.stop) })
	}
}

// janitor performs periodic cleanup of expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func (j *janitor) run(s *MemoryStore) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-j.stop:
			return
		}
	}
}
