// Package worker runs backup jobs: locate volumes, snapshot them, rotate
// old snapshots.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/clock"

	"github.com/raoulx24/bsu-backup/internal/cloud"
	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/locator"
	"github.com/raoulx24/bsu-backup/internal/logging"
	"github.com/raoulx24/bsu-backup/internal/mailbox"
	"github.com/raoulx24/bsu-backup/internal/retention"
	"github.com/raoulx24/bsu-backup/internal/snapshot"
)

// Connector opens the authenticated API handle for one run.
type Connector func(ctx context.Context, auth config.AuthConfig, log logging.Logger) (cloud.EC2API, error)

// DefaultConnector connects to the real API.
func DefaultConnector(ctx context.Context, auth config.AuthConfig, log logging.Logger) (cloud.EC2API, error) {
	client, err := cloud.Connect(ctx, auth, log)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Worker runs backup jobs with the current configuration.
type Worker struct {
	mu      sync.RWMutex
	cfg     config.Config
	log     logging.Logger
	clock   clock.Clock
	connect Connector
	mb      *mailbox.Mailbox[Job]
}

// New creates a worker. A nil connect uses DefaultConnector, a nil clk the
// wall clock. mb is only needed by Start.
func New(cfg *config.Config, log logging.Logger, clk clock.Clock, connect Connector, mb *mailbox.Mailbox[Job]) *Worker {
	log.Debug("creating worker")
	if connect == nil {
		connect = DefaultConnector
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Worker{
		cfg:     *cfg,
		log:     log,
		clock:   clk,
		connect: connect,
		mb:      mb,
	}
}

// UpdateConfig hot‑reloads the configuration used by the next run.
func (w *Worker) UpdateConfig(cfg *config.Config) {
	w.log.Debug("entering Worker.UpdateConfig()")
	w.mu.Lock()
	w.cfg = *cfg
	w.mu.Unlock()
}

func (w *Worker) config() config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Run executes one job: connect, locate, create, rotate, in that order.
// Configuration errors are returned before the API is contacted. Any
// other fatal error aborts the run.
func (w *Worker) Run(ctx context.Context, job Job) error {
	cfg := w.config()
	log := w.log.With("run", job.ID, "trigger", job.Trigger)

	if err := cfg.Validate(); err != nil {
		return err
	}
	target, err := locator.TargetFromConfig(cfg.Target)
	if err != nil {
		return err
	}
	policy, scope, err := retention.PolicyFromConfig(cfg.Retention)
	if err != nil && !cfg.Retention.Disabled {
		return err
	}
	if _, err := cloud.ResolveEndpoint(cfg.Auth.Region, cfg.Auth.Endpoint); err != nil {
		return err
	}

	api, err := w.connect(ctx, cfg.Auth, log)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	volumes, err := locator.New(api, log).Locate(ctx, target)
	if err != nil {
		return fmt.Errorf("locating volumes: %w", err)
	}
	if len(volumes) == 0 {
		log.Warn("no volume matches the target, nothing to do")
		return nil
	}
	log.Info("volumes located", "volumes", volumes)

	if cfg.Create.Disabled {
		log.Info("snapshot creation disabled")
	} else if err := w.create(ctx, api, log, cfg.Create, volumes); err != nil {
		return err
	}

	if cfg.Retention.Disabled {
		log.Info("rotation disabled")
		return nil
	}
	return w.rotate(ctx, api, log, cfg.Retention, policy, scope, volumes)
}

func (w *Worker) create(ctx context.Context, api cloud.EC2API, log logging.Logger, cfg config.CreateConfig, volumes []string) error {
	creator := snapshot.NewCreator(api, log, w.clock, snapshot.CreatorOptions{
		CopyTags:    cfg.CopyTags,
		WaitTimeout: cfg.WaitTimeout,
		WaitDelay:   cfg.WaitDelay,
	})
	ids, err := creator.Create(ctx, volumes)
	if err != nil {
		return fmt.Errorf("creating snapshots: %w", err)
	}
	log.Info("snapshots completed", "snapshots", ids)
	return nil
}
