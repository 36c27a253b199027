package worker

import (
	"context"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/retention"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Rotator prunes the backup set after a verified backup.
type Rotator interface {
	Rotate(ctx context.Context, dir string, namer snapshot.Namer, policy config.RetentionPolicy, dryRun bool) (retention.Plan, error)
}

// rotate is the last step of the chain; it runs only after verification.
func (w *Worker) rotate(ctx context.Context, r *run) error {
	plan, err := w.rotator.Rotate(ctx, w.cfg.Destination, w.namer, w.cfg.Retention(), r.job.DryRun)
	r.report.Plan = plan
	if err != nil {
		return err
	}
	r.advance(Rotated)
	return nil
}
