package watcher

import (
	"github.com/raoulx24/bsu-backup/internal/config"
)

// UpdateConfig updates the polling and debounce settings for hot‑reload.
// The watched path and method are fixed for the life of the watcher.
func (w *Watcher) UpdateConfig(cfg config.ReloadConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.interval = cfg.PollInterval
	w.debounce = cfg.DebounceWindow
}
