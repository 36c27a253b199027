// Package watcher produces backup jobs for daemon mode: on a cron schedule
// and, optionally, when the source tree changes.
package watcher

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raoulx24/dir-archiver/internal/archive"
	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/fsprobe"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/worker"
)

// Watcher turns schedule ticks and source changes into jobs in the mailbox.
type Watcher struct {
	source      string
	incremental bool
	schedule    string
	mode        string
	interval    time.Duration
	debounce    time.Duration

	matcher *archive.Matcher
	ignore  []string // absolute paths the daemon itself writes to

	log logging.Logger
	now func() time.Time

	mu   sync.Mutex
	last fingerprint

	mb *mailbox.Mailbox[worker.Job]
}

// New creates a watcher for source.
func New(cfg *config.Config, source string, incremental bool, log logging.Logger, mb *mailbox.Mailbox[worker.Job]) (*Watcher, error) {
	root, err := filepath.Abs(source)
	if err != nil {
		return nil, err
	}
	m, err := archive.NewMatcher(cfg.ExcludePatterns())
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}

	w := &Watcher{
		source:      root,
		incremental: incremental,
		schedule:    cfg.Schedule,
		mode:        cfg.WatchMode,
		interval:    cfg.PollInterval,
		debounce:    cfg.Debounce,
		matcher:     m,
		log:         log,
		now:         time.Now,
		mb:          mb,
	}
	for _, p := range []string{cfg.Destination, cfg.SnapshotFile, cfg.LockFile, cfg.LogFile, cfg.MetricsTextfile} {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}
	return w, nil
}

// Start runs the schedule and the configured change detection until ctx
// is done. If either fails the other is stopped and the error returned.
func (w *Watcher) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.schedule != "" {
		g.Go(func() error {
			if err := w.StartSchedule(ctx); err != nil {
				w.log.Error("schedule stopped", "error", err)
				return err
			}
			return nil
		})
	}

	if w.mode != "off" && w.mode != "" {
		g.Go(func() error {
			if err := w.watch(ctx); err != nil {
				w.log.Error("change detection stopped", "mode", w.mode, "error", err)
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// watch chooses the change detection strategy based on config.
func (w *Watcher) watch(ctx context.Context) error {
	switch w.mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto":
		res := fsprobe.Probe(w.source)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled, polling instead", "reason", res.Reason)
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("unknown watch mode %q", w.mode)
	}
}

// trigger submits a backup job; a job still waiting is replaced.
func (w *Watcher) trigger(reason string) {
	job := worker.Job{
		Source:      w.source,
		Incremental: w.incremental,
		Trigger:     reason,
		At:          w.now(),
	}
	if w.mb.Put(job) {
		w.log.Debug("coalesced trigger", "trigger", reason)
	}
	w.log.Info("backup triggered", "trigger", reason)
}

// relevant reports whether a change at name should cause a backup.
func (w *Watcher) relevant(name string) bool {
	for _, p := range w.ignore {
		if name == p || strings.HasPrefix(name, p+string(filepath.Separator)) {
			return false
		}
	}
	rel, err := filepath.Rel(w.source, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	// an event deep inside an excluded directory still names the file
	for p := filepath.ToSlash(rel); p != "." && p != "/"; p = path.Dir(p) {
		if w.matcher.Excluded(p) {
			return false
		}
	}
	return true
}
