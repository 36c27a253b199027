package watcher

import (
	"context"
	"time"
)

// StartPolling compares the source tree against the previous poll on a
// fixed interval.
func (w *Watcher) StartPolling(ctx context.Context) {
	interval := w.interval
	if interval <= 0 {
		interval = time.Minute
	}
	w.log.Info("polling source for changes", "source", w.source, "interval", interval.String())

	w.detect()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.detect()
		}
	}
}
