// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package objectstoretest provides an in-memory objectstore.Store for tests.
package objectstoretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/vodpipe/internal/objectstore"
)

// Memory is a concurrency-safe in-memory Store that counts calls.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    map[string]int
	deletes []string

	// GetErr, when set, is returned by Get for every key.
	GetErr error
	// PresignErr, when set, is returned by both presign calls.
	PresignErr error
	// GetDelay stalls Get to widen race windows in tests.
	GetDelay time.Duration
}

var _ objectstore.Store = (*Memory)(nil)

// New returns an empty store.
func New() *Memory {
	return &Memory{objects: map[string][]byte{}, gets: map[string]int{}}
}

// Seed stores an object directly.
func (m *Memory) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// Has reports whether key exists.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Gets returns how many times Get was called for key.
func (m *Memory) Gets(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets[key]
}

// TotalGets returns the number of Get calls across all keys.
func (m *Memory) TotalGets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.gets {
		n += c
	}
	return n
}

// Deleted returns the keys passed to Delete, in call order.
func (m *Memory) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// Keys returns all stored keys sorted.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.Seed(key, data)
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (*objectstore.Object, error) {
	m.mu.Lock()
	m.gets[key]++
	data, ok := m.objects[key]
	getErr, delay := m.GetErr, m.GetDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return &objectstore.Object{
		Body:        io.NopCloser(bytes.NewReader(data)),
		Size:        int64(len(data)),
		ContentType: objectstore.ContentTypeFor(key),
	}, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	delete(m.objects, key)
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	if m.PresignErr != nil {
		return "", m.PresignErr
	}
	return fmt.Sprintf("https://objects.test/%s?op=put&ttl=%d", key, int(ttl.Seconds())), nil
}

func (m *Memory) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if m.PresignErr != nil {
		return "", m.PresignErr
	}
	return fmt.Sprintf("https://objects.test/%s?op=get&ttl=%d", key, int(ttl.Seconds())), nil
}

func (m *Memory) Ping(context.Context) error { return nil }
