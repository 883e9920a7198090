package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/bsu-backup/internal/config"
)

func parse(t *testing.T, args ...string) *config.Config {
	t.Helper()
	o := &options{}
	cmd := newCommand(o)
	require.NoError(t, cmd.ParseFlags(args))

	cfg, err := loadConfig(cmd, o)
	require.NoError(t, err)
	return cfg
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg := parse(t,
		"--region", "eu-west-2",
		"--volumes-tags", "Name:db",
		"--volumes-tags", "env:prod,eu",
		"--rotate", "3",
		"--rotate-only",
		"--copy-tags",
		"--dry-run",
		"--debug",
	)

	assert.Equal(t, "eu-west-2", cfg.Auth.Region)
	assert.Equal(t, []string{"Name:db", "env:prod,eu"}, cfg.Target.VolumeTags)
	assert.Equal(t, 3, cfg.Retention.Count)
	assert.Nil(t, cfg.Retention.Days)
	assert.True(t, cfg.Retention.OnlyOwned)
	assert.True(t, cfg.Retention.DryRun)
	assert.True(t, cfg.Create.CopyTags)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestUnsetFlagsKeepFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  region: us-east-2
target:
  instanceId: i-file
retention:
  count: 4
  onlyOwned: true
schedule:
  cron: "@daily"
`), 0o600))

	cfg := parse(t, "--config", path, "--no-create")

	assert.Equal(t, "us-east-2", cfg.Auth.Region)
	assert.Equal(t, "i-file", cfg.Target.InstanceID)
	assert.Equal(t, 4, cfg.Retention.Count)
	assert.True(t, cfg.Retention.OnlyOwned)
	assert.True(t, cfg.Create.Disabled)
	assert.Equal(t, "@daily", cfg.Schedule.Cron)
}

func TestTargetFlagReplacesFileTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  instanceId: i-file\n"), 0o600))

	cfg := parse(t, "--config", path, "--volume-id", "vol-cli", "--region", "eu-west-2")

	assert.Equal(t, config.TargetConfig{VolumeID: "vol-cli"}, cfg.Target)
	require.NoError(t, cfg.Validate())
}

func TestRotateDaysSetsAgePolicy(t *testing.T) {
	cfg := parse(t, "--volume-id", "vol-1", "--region", "eu-west-2", "--rotate-days", "0")

	require.NotNil(t, cfg.Retention.Days)
	assert.Equal(t, 0, *cfg.Retention.Days)
	require.NoError(t, cfg.Validate())
}

func TestMutuallyExclusiveFlags(t *testing.T) {
	tests := map[string][]string{
		"targets":  {"--volume-id", "vol-1", "--instance-id", "i-1"},
		"policies": {"--volume-id", "vol-1", "--rotate", "2", "--rotate-days", "3"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(args, "--region", "eu-west-2"))
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--volume-id", "vol-1"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	assert.ErrorIs(t, err, config.ErrInvalid)
}
