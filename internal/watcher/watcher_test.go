package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
)

func newTestWatcher(t *testing.T, cfg config.ReloadConfig) (*Watcher, string, *atomic.Int32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth: {}\n"), 0o600))

	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, base, base))

	var calls atomic.Int32
	w := New(path, cfg, logging.Nop(), func() { calls.Add(1) })
	return w, path, &calls
}

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestDetectReportsNewerFileOnce(t *testing.T) {
	w, path, calls := newTestWatcher(t, config.ReloadConfig{})

	w.detect()
	assert.Equal(t, int32(0), calls.Load())

	touch(t, path, time.Now())
	w.detect()
	w.detect()
	assert.Equal(t, int32(1), calls.Load())
}

func TestDetectIgnoresMissingFile(t *testing.T) {
	w, path, calls := newTestWatcher(t, config.ReloadConfig{})
	require.NoError(t, os.Remove(path))

	w.detect()
	assert.Equal(t, int32(0), calls.Load())
}

func TestStartUnknownMethod(t *testing.T) {
	w, _, _ := newTestWatcher(t, config.ReloadConfig{Method: "inotify2"})
	err := w.Start(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestPollingPicksUpChange(t *testing.T) {
	w, path, calls := newTestWatcher(t, config.ReloadConfig{
		Method:       "poll",
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	touch(t, path, time.Now())
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestUpdateConfig(t *testing.T) {
	w, _, _ := newTestWatcher(t, config.ReloadConfig{PollInterval: time.Second})
	assert.Equal(t, time.Second, w.pollInterval())

	w.UpdateConfig(config.ReloadConfig{PollInterval: 0, DebounceWindow: time.Second})
	assert.Equal(t, defaultPollInterval, w.pollInterval())
	assert.Equal(t, time.Second, w.debounce)
}
