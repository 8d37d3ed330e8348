// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type levelRecorder struct {
	mu     sync.Mutex
	levels []string
}

func (r *levelRecorder) apply(level string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
	return nil
}

func (r *levelRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.levels...)
}

func newHolder(t *testing.T, body string) (*ConfigHolder, string, *levelRecorder) {
	t.Helper()
	path := writeConfig(t, body)
	loader := testLoader(path, nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	rec := &levelRecorder{}
	h.applyLevel = rec.apply
	return h, path, rec
}

func TestReload_AppliesLogLevel(t *testing.T) {
	h, path, rec := newHolder(t, "log:\n  level: info\n")
	updates := make(chan AppConfig, 1)
	h.RegisterListener(updates)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().Log.Level)
	assert.Equal(t, []string{"debug"}, rec.get())
	select {
	case got := <-updates:
		assert.Equal(t, "debug", got.Log.Level)
	default:
		t.Fatal("listener not notified")
	}
}

func TestReload_InvalidKeepsCurrent(t *testing.T) {
	h, path, rec := newHolder(t, "log:\n  level: warn\n")

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: chatty\n"), 0o600))
	assert.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "warn", h.Get().Log.Level)
	assert.Empty(t, rec.get())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	h, path, rec := newHolder(t, "log:\n  level: info\n")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, h.StartWatcher(ctx))
	t.Cleanup(h.Stop)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))

	assert.Eventually(t, func() bool {
		return h.Get().Log.Level == "error"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, rec.get(), "error")
}

func TestWatcher_DisabledWithoutFile(t *testing.T) {
	loader := testLoader("", nil)
	cfg, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(cfg, loader)
	assert.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
