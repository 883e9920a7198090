package watcher

import (
	"context"
	"time"
)

const defaultPollInterval = 10 * time.Second

// StartPolling triggers detect() on a fixed interval. Interval changes
// made through UpdateConfig apply from the next tick.
func (w *Watcher) StartPolling(ctx context.Context) {
	interval := w.pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.detect()
			if next := w.pollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (w *Watcher) pollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.interval <= 0 {
		return defaultPollInterval
	}
	return w.interval
}
