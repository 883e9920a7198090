package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration errors. They are reported before any
// remote call is made.
var ErrInvalid = errors.New("invalid configuration")

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			MaxAttempts: 10,
		},
		Create: CreateConfig{
			WaitTimeout: time.Hour,
			WaitDelay:   15 * time.Second,
		},
		Retention: RetentionConfig{
			Count: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		ConfigReload: ReloadConfig{
			Method:         "auto",
			PollInterval:   10 * time.Second,
			DebounceWindow: 500 * time.Millisecond,
		},
	}
}

// Load reads a YAML file on top of Default. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	// read raw YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// expand $(ENV_VAR) placeholders
	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}

	return cfg, nil
}

// Validate checks the invariants the rest of the program relies on.
func (c *Config) Validate() error {
	if c.Auth.Region == "" {
		return fmt.Errorf("%w: region is required", ErrInvalid)
	}

	if err := c.Target.Validate(); err != nil {
		return err
	}

	switch {
	case c.Retention.Disabled:
	case c.Retention.Days != nil:
		if *c.Retention.Days < 0 {
			return fmt.Errorf("%w: retention days must be >= 0, got %d", ErrInvalid, *c.Retention.Days)
		}
	case c.Retention.Count < 1:
		return fmt.Errorf("%w: retention count must be >= 1, got %d", ErrInvalid, c.Retention.Count)
	}

	if !c.Create.Disabled && c.Create.WaitTimeout <= 0 {
		return fmt.Errorf("%w: create wait timeout must be positive", ErrInvalid)
	}

	return nil
}

// Validate reports an error unless exactly one selector is set.
func (t TargetConfig) Validate() error {
	set := 0
	if t.VolumeID != "" {
		set++
	}
	if t.InstanceID != "" {
		set++
	}
	if len(t.InstanceTags) > 0 {
		set++
	}
	if len(t.VolumeTags) > 0 {
		set++
	}

	switch set {
	case 0:
		return fmt.Errorf("%w: one of volume id, instance id, instance tags or volume tags is required", ErrInvalid)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: volume id, instance id, instance tags and volume tags are mutually exclusive", ErrInvalid)
	}
}
