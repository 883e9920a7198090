package watcher

import (
	"os"
)

// detect calls onChange if the file was modified since the last call.
// Missing files are ignored: editors often replace the file in two steps.
func (w *Watcher) detect() {
	w.mu.RLock()
	path := w.path
	last := w.lastModTime
	w.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		w.log.Debug("config file not readable", "path", path, "error", err)
		return
	}

	mod := info.ModTime()
	if !mod.After(last) {
		return
	}

	w.mu.Lock()
	w.lastModTime = mod
	w.mu.Unlock()

	w.log.Info("config file changed", "path", path, "modTime", mod)
	w.onChange()
}
