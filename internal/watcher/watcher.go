// Package watcher monitors the configuration file and reports changes.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/fsprobe"
	"github.com/raoulx24/bsu-backup/internal/logging"
)

// Watcher observes one file and calls onChange when it is rewritten.
type Watcher struct {
	mu sync.RWMutex

	path     string
	interval time.Duration
	mode     string
	debounce time.Duration

	log logging.Logger

	lastModTime time.Time

	onChange func()
}

// New creates a watcher for path. The current modification time is the
// baseline: only later writes are reported.
func New(path string, cfg config.ReloadConfig, log logging.Logger, onChange func()) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		interval: cfg.PollInterval,
		mode:     cfg.Method,
		debounce: cfg.DebounceWindow,
		log:      log,
		onChange: onChange,
	}
	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
	}
	return w
}

// Start chooses the correct watching strategy based on config.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.RLock()
	mode := w.mode
	dir := filepath.Dir(w.path)
	w.mu.RUnlock()

	switch mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "", "auto":
		res := fsprobe.Probe(dir, fsprobe.DefaultTimeout)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled, polling", "reason", res.Reason)
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("%w: unknown reload method %q", config.ErrInvalid, mode)
	}
}
