package worker

import (
	"context"
	"fmt"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/archive"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Listing is one archive with its verification outcome.
type Listing struct {
	snapshot.Entry `yaml:",inline"`
	Status         string `json:"status" yaml:"status"`
}

// List reports every archive in the destination, newest first, with its
// digest status. It does not take the lock.
func (w *Worker) List(ctx context.Context) ([]Listing, error) {
	return w.inspect(ctx)
}

func (w *Worker) inspect(ctx context.Context) ([]Listing, error) {
	entries, err := snapshot.Scan(w.cfg.Destination, w.namer)
	if err != nil {
		return nil, err
	}

	out := make([]Listing, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status, err := w.verifier.Verify(e.Path)
		l := Listing{Entry: e, Status: status.String()}
		if err != nil {
			l.Status = "error"
			w.log.Warn("verification error", "archive", e.Name, "error", err)
		}
		out = append(out, l)
	}
	return out, nil
}

// VerifyAll re-checks every archive under the lock. Any archive that is not
// valid fails the whole pass with apperr.ErrDigestMismatch.
func (w *Worker) VerifyAll(ctx context.Context) ([]Listing, error) {
	log := w.log.With("run", logging.NewRunID())
	start := w.now()
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	listings, failed, err := w.verifyAll(ctx, log)
	if err != nil {
		log.Error("verification failed", "error", err)
	} else {
		log.Info("verification passed", "archives", len(listings))
	}
	w.observe(log, metrics.Outcome{
		Operation: "verify",
		Start:     start,
		End:       w.now(),
		Err:       err,
		Archives:  len(listings),
		Failed:    failed,
	})
	return listings, err
}

func (w *Worker) verifyAll(ctx context.Context, log logging.Logger) ([]Listing, int, error) {
	release, err := w.acquire(log)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	listings, err := w.inspect(ctx)
	if err != nil {
		return nil, 0, err
	}

	failed := 0
	for _, l := range listings {
		if l.Status != "valid" {
			failed++
			log.Error("archive failed verification", "archive", l.Name, "status", l.Status)
		}
	}
	if failed > 0 {
		return listings, failed, fmt.Errorf("%w: %d of %d archives failed verification",
			apperr.ErrDigestMismatch, failed, len(listings))
	}
	return listings, 0, nil
}

// Restore extracts the named archive into targetDir under the lock.
func (w *Worker) Restore(ctx context.Context, name, targetDir string, verify bool) (archive.ExtractStats, error) {
	log := w.log.With("run", logging.NewRunID())
	start := w.now()
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	stats, err := w.restore(ctx, log, name, targetDir, verify)
	if err != nil {
		log.Error("restore failed", "archive", name, "error", err)
	}
	w.observe(log, metrics.Outcome{Operation: "restore", Start: start, End: w.now(), Err: err})
	return stats, err
}

func (w *Worker) restore(ctx context.Context, log logging.Logger, name, targetDir string, verify bool) (archive.ExtractStats, error) {
	release, err := w.acquire(log)
	if err != nil {
		return archive.ExtractStats{}, err
	}
	defer release()
	return w.restorer.Restore(ctx, name, targetDir, verify)
}
