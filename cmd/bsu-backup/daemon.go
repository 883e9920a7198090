package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
	"github.com/raoulx24/bsu-backup/internal/mailbox"
	"github.com/raoulx24/bsu-backup/internal/scheduler"
	"github.com/raoulx24/bsu-backup/internal/watcher"
	"github.com/raoulx24/bsu-backup/internal/worker"
)

// runDaemon runs backups on the cron schedule until ctx is done. The
// configuration file is reloaded when it changes or on SIGHUP.
func runDaemon(ctx context.Context, cmd *cobra.Command, o *options, cfg *config.Config, log logging.Logger) error {
	// Mailbox for backup jobs
	mb := mailbox.New[worker.Job]()

	w := worker.New(cfg, log, nil, nil, mb)

	sched, err := scheduler.New(cfg.Schedule.Cron, log, mb)
	if err != nil {
		return err
	}

	var watch *watcher.Watcher

	reload := func() {
		newCfg, err := loadConfig(cmd, o)
		if err == nil {
			err = newCfg.Validate()
		}
		if err != nil {
			log.Error("config reload failed, keeping current configuration", "error", err)
			return
		}

		// Apply updates
		w.UpdateConfig(newCfg)
		if err := sched.UpdateConfig(newCfg.Schedule); err != nil {
			log.Error("schedule not updated", "error", err)
		}
		if watch != nil {
			watch.UpdateConfig(newCfg.ConfigReload)
		}

		log.Info("config reloaded")
	}

	if cfg.ConfigReload.Enabled && o.configPath != "" {
		watch = watcher.New(o.configPath, cfg.ConfigReload, log, reload)
		go func() {
			if err := watch.Start(ctx); err != nil {
				log.Error("config watcher stopped", "error", err)
			}
		}()
	}

	// Hot reload on SIGHUP
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGHUP)
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				reload()
			}
		}
	}()

	sched.Start()
	defer sched.Stop()

	go w.Start(ctx)

	log.Info("daemon started", "cron", sched.Spec(), "next", sched.Next())
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
