// Package fsprobe checks whether fsnotify works for a directory by
// replacing a scratch file there and waiting for the event.
package fsprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultTimeout is how long Probe waits for the first event.
const DefaultTimeout = 200 * time.Millisecond

// Result reports whether fsnotify is usable and why not.
type Result struct {
	FsnotifySupported bool
	Reason            string
}

// Probe writes and renames a hidden file in dir, the way config files are
// usually replaced, and reports whether fsnotify saw it within timeout.
func Probe(dir string, timeout time.Duration) Result {
	st, err := os.Stat(dir)
	if err != nil {
		return Result{false, fmt.Sprintf("stat failed: %v", err)}
	}
	if !st.IsDir() {
		return Result{false, "not a directory"}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return Result{false, fmt.Sprintf("fsnotify unavailable: %v", err)}
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return Result{false, fmt.Sprintf("cannot watch directory: %v", err)}
	}

	tmp := filepath.Join(dir, ".bsu-backup-probe.tmp")
	final := filepath.Join(dir, ".bsu-backup-probe")

	if err := os.WriteFile(tmp, nil, 0o600); err != nil {
		return Result{false, fmt.Sprintf("cannot create probe file: %v", err)}
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return Result{false, fmt.Sprintf("rename failed: %v", err)}
	}
	defer os.Remove(final)

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return Result{false, "event channel closed"}
			}
			if ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				return Result{true, ""}
			}
		case <-deadline:
			return Result{false, "no events received within " + timeout.String()}
		}
	}
}
