package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
	"github.com/raoulx24/bsu-backup/internal/worker"
)

type options struct {
	configPath string

	volumeID      string
	instanceID    string
	instancesTags []string
	volumesTags   []string

	profile    string
	region     string
	endpoint   string
	clientCert string
	clientKey  string

	rotate     int
	rotateDays int
	rotateOnly bool
	copyTags   bool
	noCreate   bool
	noRotate   bool
	dryRun     bool

	schedule  string
	logLevel  string
	logFormat string
	debug     bool
}

func newRootCmd() *cobra.Command {
	return newCommand(&options{})
}

func newCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bsu-backup",
		Short:        "Snapshot block storage volumes and rotate old snapshots",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "YAML configuration file")

	f.StringVar(&o.volumeID, "volume-id", "", "back up this volume")
	f.StringVar(&o.instanceID, "instance-id", "", "back up every volume attached to this instance")
	f.StringArrayVar(&o.instancesTags, "instances-tags", nil, "back up volumes of running or stopped instances tagged key:value (repeatable)")
	f.StringArrayVar(&o.volumesTags, "volumes-tags", nil, "back up volumes tagged key:value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("volume-id", "instance-id", "instances-tags", "volumes-tags")

	f.StringVar(&o.profile, "profile", "", "credentials profile")
	f.StringVar(&o.region, "region", "", "region")
	f.StringVar(&o.endpoint, "endpoint", "", "API endpoint, required for non-canonical regions")
	f.StringVar(&o.clientCert, "client-cert", "", "PEM client certificate")
	f.StringVar(&o.clientKey, "client-key", "", "PEM client key (defaults to --client-cert)")

	f.IntVar(&o.rotate, "rotate", 10, "keep this many snapshots per volume")
	f.IntVar(&o.rotateDays, "rotate-days", 0, "delete snapshots at least this many days old")
	cmd.MarkFlagsMutuallyExclusive("rotate", "rotate-days")
	f.BoolVar(&o.rotateOnly, "rotate-only", false, "only rotate snapshots created by bsu-backup")
	f.BoolVar(&o.copyTags, "copy-tags", false, "copy volume tags to new snapshots")
	f.BoolVar(&o.noCreate, "no-create", false, "skip snapshot creation")
	f.BoolVar(&o.noRotate, "no-rotate", false, "skip rotation")
	f.BoolVar(&o.dryRun, "dry-run", false, "log the snapshots rotation would delete without deleting them")

	f.StringVar(&o.schedule, "schedule", "", "cron expression (UTC); runs as a daemon when set")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", "", "console or json")
	f.BoolVar(&o.debug, "debug", false, "shorthand for --log-level debug")

	return cmd
}

// loadConfig reads the configuration file and lays the explicitly set
// flags over it. It runs again on every reload so flags keep winning.
func loadConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, o, cfg)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, o *options, cfg *config.Config) {
	f := cmd.Flags()

	// A target flag replaces the whole target section.
	switch {
	case f.Changed("volume-id"):
		cfg.Target = config.TargetConfig{VolumeID: o.volumeID}
	case f.Changed("instance-id"):
		cfg.Target = config.TargetConfig{InstanceID: o.instanceID}
	case f.Changed("instances-tags"):
		cfg.Target = config.TargetConfig{InstanceTags: o.instancesTags}
	case f.Changed("volumes-tags"):
		cfg.Target = config.TargetConfig{VolumeTags: o.volumesTags}
	}

	if f.Changed("profile") {
		cfg.Auth.Profile = o.profile
	}
	if f.Changed("region") {
		cfg.Auth.Region = o.region
	}
	if f.Changed("endpoint") {
		cfg.Auth.Endpoint = o.endpoint
	}
	if f.Changed("client-cert") {
		cfg.Auth.ClientCert = o.clientCert
	}
	if f.Changed("client-key") {
		cfg.Auth.ClientKey = o.clientKey
	}

	if f.Changed("rotate") {
		cfg.Retention.Count = o.rotate
		cfg.Retention.Days = nil
	}
	if f.Changed("rotate-days") {
		days := o.rotateDays
		cfg.Retention.Days = &days
	}
	if f.Changed("rotate-only") {
		cfg.Retention.OnlyOwned = o.rotateOnly
	}
	if f.Changed("dry-run") {
		cfg.Retention.DryRun = o.dryRun
	}
	if f.Changed("no-rotate") {
		cfg.Retention.Disabled = o.noRotate
	}
	if f.Changed("copy-tags") {
		cfg.Create.CopyTags = o.copyTags
	}
	if f.Changed("no-create") {
		cfg.Create.Disabled = o.noCreate
	}

	if f.Changed("schedule") {
		cfg.Schedule.Cron = o.schedule
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
}

func run(cmd *cobra.Command, o *options) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(runContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule.Cron != "" {
		return runDaemon(ctx, cmd, o, cfg, log)
	}

	w := worker.New(cfg, log, nil, nil, nil)
	job := worker.NewJob("cli", time.Now().UTC())
	if err := w.Run(ctx, job); err != nil {
		log.Error("backup failed", "run", job.ID, "error", err)
		return fmt.Errorf("backup failed: %w", err)
	}
	log.Info("backup finished", "run", job.ID)
	return nil
}

func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
