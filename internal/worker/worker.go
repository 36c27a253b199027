// Package worker sequences a backup run: lock, space check, archive,
// verification, rotation and release. It also serves list, restore and
// verify requests and the daemon loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/archive"
	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/digest"
	"github.com/raoulx24/dir-archiver/internal/fs"
	"github.com/raoulx24/dir-archiver/internal/lock"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/restore"
	"github.com/raoulx24/dir-archiver/internal/retention"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Locker is the mutual exclusion held for the duration of a run.
type Locker interface {
	Acquire() error
	Release() error
}

// Archiver writes archives into the destination.
type Archiver interface {
	CheckSpace() error
	CreateFull(ctx context.Context, sourceDir string, excludes []string, dryRun bool) (archive.Result, error)
	CreateIncremental(ctx context.Context, sourceDir string, excludes []string, statePath string, dryRun bool) (archive.Result, error)
}

// Deps overrides the collaborators New would otherwise build from the
// config. Every field is optional.
type Deps struct {
	FS       fs.FS
	Lock     Locker
	Archiver Archiver
	Verifier *digest.Verifier
	Rotator  Rotator
	Restorer *restore.Engine
	Metrics  *metrics.Recorder
	Now      func() time.Time
}

// Worker runs operations against one destination.
type Worker struct {
	cfg   *config.Config
	namer snapshot.Namer
	log   logging.Logger
	now   func() time.Time

	lock     Locker
	archiver Archiver
	verifier *digest.Verifier
	rotator  Rotator
	restorer *restore.Engine
	metrics  *metrics.Recorder

	mb *mailbox.Mailbox[Job]
}

// New wires a worker from cfg. mb may be nil outside daemon mode.
func New(cfg *config.Config, log logging.Logger, mb *mailbox.Mailbox[Job], d Deps) (*Worker, error) {
	if log == nil {
		log = logging.Nop()
	}
	layout, err := cfg.TimeLayout()
	if err != nil {
		return nil, err
	}
	if d.FS == nil {
		d.FS = fs.New()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if mb == nil {
		mb = mailbox.New[Job]()
	}

	w := &Worker{
		cfg:   cfg,
		namer: snapshot.Namer{Prefix: cfg.Prefix, Layout: layout, Location: time.Local},
		log:   log,
		now:   d.Now,
		mb:    mb,
	}

	w.verifier = d.Verifier
	if w.verifier == nil {
		w.verifier = digest.New(d.FS)
	}
	w.lock = d.Lock
	if w.lock == nil {
		w.lock = lock.New(cfg.LockFile, log)
	}
	w.archiver = d.Archiver
	if w.archiver == nil {
		w.archiver = archive.New(archive.Options{
			Destination: cfg.Destination,
			MinFreeMB:   cfg.MinFreeMB,
			Namer:       w.namer,
			FS:          d.FS,
			Verifier:    w.verifier,
			Log:         log,
			Now:         d.Now,
		})
	}
	w.rotator = d.Rotator
	if w.rotator == nil {
		w.rotator = retention.New(d.FS, log)
	}
	w.restorer = d.Restorer
	if w.restorer == nil {
		w.restorer = restore.New(cfg.Destination, d.FS, w.verifier, log)
	}
	w.metrics = d.Metrics
	if w.metrics == nil {
		w.metrics = metrics.New(cfg.MetricsTextfile)
	}
	return w, nil
}

// Namer returns the archive naming in effect.
func (w *Worker) Namer() snapshot.Namer { return w.namer }

// Report describes a finished backup run.
type Report struct {
	RunID  string
	Job    Job
	State  State // Done, or Failed
	Last   State // last state reached before Done/Failed
	Result archive.Result
	Plan   retention.Plan
}

// run carries the per-run state through the chain.
type run struct {
	job    Job
	log    logging.Logger
	report *Report
}

func (r *run) advance(next State) {
	r.log.Debug("state transition", "from", r.report.Last.String(), "to", next.String())
	r.report.Last = next
}

// Backup runs the full chain for job. The lock is released on every path;
// rotation only happens after the new archive verified.
func (w *Worker) Backup(ctx context.Context, job Job) (Report, error) {
	if job.At.IsZero() {
		job.At = w.now()
	}
	report := Report{RunID: logging.NewRunID(), Job: job, Last: Idle}
	r := &run{job: job, report: &report, log: w.log.With("run", report.RunID)}

	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	r.log.Info("backup started", "source", job.Source, "incremental", job.Incremental,
		"dry_run", job.DryRun, "trigger", job.Trigger)

	err := w.backup(ctx, r)
	if err != nil {
		report.State = Failed
		r.log.Error("backup failed", "state", report.Last.String(), "error", err)
	} else {
		report.State = Done
		r.log.Info("backup finished", "archive", report.Result.Entry.Name,
			"kept", len(report.Plan.Kept), "deleted", len(report.Plan.Deleted))
	}
	r.log.Debug("state transition", "from", report.Last.String(), "to", report.State.String())

	if !job.DryRun {
		w.observe(r.log, metrics.Outcome{
			Operation:   "backup",
			Start:       job.At,
			End:         w.now(),
			Err:         err,
			ArchiveSize: report.Result.Entry.Size,
			Kept:        len(report.Plan.Kept),
			Deleted:     len(report.Plan.Deleted),
			Archives:    w.countArchives(),
		})
	}
	return report, err
}

func (w *Worker) backup(ctx context.Context, r *run) error {
	release, err := w.acquire(r.log)
	if err != nil {
		return err
	}
	defer release()
	r.advance(LockAcquired)

	if err := w.archiver.CheckSpace(); err != nil {
		return err
	}
	r.advance(SpaceChecked)

	excludes := w.cfg.ExcludePatterns()
	var res archive.Result
	if r.job.Incremental {
		res, err = w.archiver.CreateIncremental(ctx, r.job.Source, excludes, w.cfg.SnapshotFile, r.job.DryRun)
	} else {
		res, err = w.archiver.CreateFull(ctx, r.job.Source, excludes, r.job.DryRun)
	}
	if err != nil {
		return err
	}
	r.report.Result = res
	r.advance(Archived)

	if r.job.DryRun {
		r.log.Info("dry run: skipping verification", "archive", res.Entry.Path)
	} else if err := w.verifier.Check(res.Entry.Path); err != nil {
		return err
	}
	r.advance(Verified)

	if err := w.rotate(ctx, r); err != nil {
		return fmt.Errorf("rotation: %w", err)
	}
	return nil
}

// acquire takes the lock and returns its release, which only logs failures.
func (w *Worker) acquire(log logging.Logger) (func(), error) {
	if err := w.lock.Acquire(); err != nil {
		return nil, err
	}
	return func() {
		if err := w.lock.Release(); err != nil {
			log.Warn("releasing lock failed", "error", err)
		}
	}, nil
}

func (w *Worker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

// observe records o unless the run lost the lock: the owner's series stay
// as they are and a contended run writes nothing.
func (w *Worker) observe(log logging.Logger, o metrics.Outcome) {
	if errors.Is(o.Err, apperr.ErrLockContention) {
		log.Debug("lock held elsewhere, metrics left untouched")
		return
	}
	w.metrics.Observe(o)
	if err := w.metrics.Write(); err != nil {
		log.Warn("metrics not written", "error", err)
	}
}

func (w *Worker) countArchives() int {
	entries, err := snapshot.Scan(w.cfg.Destination, w.namer)
	if err != nil {
		return 0
	}
	return len(entries)
}
