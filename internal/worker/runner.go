package worker

import "context"

// Start runs the daemon loop: it takes jobs from the mailbox one at a time
// until ctx is done. A failed run is logged and the loop goes on.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("worker started")
	for {
		job, ok := w.mb.Take(ctx)
		if !ok {
			w.log.Info("worker stopped")
			return
		}

		// Backup logs its own failures.
		if _, err := w.Backup(ctx, job); err != nil && ctx.Err() != nil {
			w.log.Info("worker stopped")
			return
		}
	}
}

// Submit hands a job to the daemon loop, replacing one still waiting.
func (w *Worker) Submit(job Job) {
	if w.mb.Put(job) {
		w.log.Debug("pending job replaced", "trigger", job.Trigger)
	}
}
