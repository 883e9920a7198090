package config

import "time"

type Config struct {
	Auth         AuthConfig      `yaml:"auth"`
	Target       TargetConfig    `yaml:"target"`
	Create       CreateConfig    `yaml:"create"`
	Retention    RetentionConfig `yaml:"retention"`
	Schedule     ScheduleConfig  `yaml:"schedule"`
	Logging      LoggingConfig   `yaml:"logging"`
	ConfigReload ReloadConfig    `yaml:"configReload"`
}

type AuthConfig struct {
	Profile     string `yaml:"profile"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`    // empty = derived from a canonical region
	ClientCert  string `yaml:"clientCert"`  // PEM certificate (may also hold the key)
	ClientKey   string `yaml:"clientKey"`   // PEM key, optional
	AccessKey   string `yaml:"accessKey"`   // optional static credentials
	SecretKey   string `yaml:"secretKey"`   // optional static credentials
	MaxAttempts int    `yaml:"maxAttempts"` // SDK retryer attempts
}

// TargetConfig selects the volumes to back up. Exactly one field must be set.
type TargetConfig struct {
	VolumeID     string   `yaml:"volumeId"`
	InstanceID   string   `yaml:"instanceId"`
	InstanceTags []string `yaml:"instanceTags"` // "key:value"
	VolumeTags   []string `yaml:"volumeTags"`   // "key:value"
}

type CreateConfig struct {
	Disabled    bool          `yaml:"disabled"`
	CopyTags    bool          `yaml:"copyTags"`
	WaitTimeout time.Duration `yaml:"waitTimeout"`
	WaitDelay   time.Duration `yaml:"waitDelay"` // minimum delay between waiter polls
}

type RetentionConfig struct {
	Disabled  bool `yaml:"disabled"`
	Count     int  `yaml:"count"`
	Days      *int `yaml:"days"`      // when set, age policy replaces count policy
	OnlyOwned bool `yaml:"onlyOwned"` // rotate only snapshots created by this tool
	DryRun    bool `yaml:"dryRun"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron"` // empty = run once and exit
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "console"
}

type ReloadConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Method         string        `yaml:"method"` // "auto", "poll", "fsnotify"
	PollInterval   time.Duration `yaml:"pollInterval"`
	DebounceWindow time.Duration `yaml:"debounceWindow"`
}
