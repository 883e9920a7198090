package worker

import (
	"context"

	"github.com/raoulx24/bsu-backup/internal/cloud"
	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
	"github.com/raoulx24/bsu-backup/internal/retention"
)

// rotate invokes the retention engine after the snapshots are created.
// "In use" deletions are already absorbed by the engine; anything it
// returns fails the run.
func (w *Worker) rotate(ctx context.Context, api cloud.EC2API, log logging.Logger, cfg config.RetentionConfig, policy retention.Policy, scope retention.Scope, volumes []string) error {
	engine := retention.New(api, log, w.clock, retention.Options{DryRun: cfg.DryRun})

	report, err := engine.Rotate(ctx, volumes, policy, scope)
	log.Info("rotation finished", "deleted", report.Deleted(), "volumes", len(report.Volumes))
	return err
}
