// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// EncodeBytes makes binary data safe for a text-valued store.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes reverses EncodeBytes.
func DecodeBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode cached bytes: %w", err)
	}
	return b, nil
}

// GetJSON loads and unmarshals a JSON value. A value that no longer decodes
// (e.g. after a schema change) is reported as a miss.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var zero T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, false, nil
	}
	return v, true, nil
}

// SetJSON marshals v and stores it.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value %q: %w", key, err)
	}
	return s.Set(ctx, key, string(data), ttl)
}
