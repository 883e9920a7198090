package worker

import "context"

// contains the loop that continuously pulls jobs from the mailbox
// and executes them. A failed run is logged; the loop keeps going.

// Start runs jobs until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("starting worker")
	for {
		job, ok := w.mb.Take(ctx)
		if !ok {
			w.log.Info("worker stopped")
			return
		}

		if err := w.Run(ctx, job); err != nil {
			w.log.Error("backup run failed", "run", job.ID, "error", err)
		}
	}
}
