// Package config loads process configuration from COUNTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "COUNTER"

// Startup modes for the process that attaches to existing resources.
const (
	StartupLegacy  = "legacy"
	StartupBackoff = "backoff"
	StartupWatch   = "watch"
)

// Config holds all process configuration. Names, target and directory must agree
// between the two processes.
type Config struct {
	Dir     string `envconfig:"DIR" default:"/dev/shm"`
	ShmName string `envconfig:"SHM_NAME" default:"CounterSharedMemory"`
	SemName string `envconfig:"SEM_NAME" default:"CounterSemaphore"`
	Target  int32  `envconfig:"TARGET" default:"1000"`

	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"10ms"`
	FlipDelay    time.Duration `envconfig:"FLIP_DELAY" default:"1ms"`

	StartupDelay   time.Duration `envconfig:"STARTUP_DELAY" default:"500ms"`
	StartupMode    string        `envconfig:"STARTUP_MODE" default:"backoff"`
	StartupTimeout time.Duration `envconfig:"STARTUP_TIMEOUT" default:"10s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`

	AuditDir    string `envconfig:"AUDIT_DIR"`
	DebugAddr   string `envconfig:"DEBUG_ADDR"`
	MetricsFile string `envconfig:"METRICS_FILE"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Dir:            "/dev/shm",
		ShmName:        "CounterSharedMemory",
		SemName:        "CounterSemaphore",
		Target:         1000,
		PollInterval:   10 * time.Millisecond,
		FlipDelay:      time.Millisecond,
		StartupDelay:   500 * time.Millisecond,
		StartupMode:    StartupBackoff,
		StartupTimeout: 10 * time.Second,
		LogLevel:       "info",
	}
}

// Validate rejects values the processes cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ShmName == "" || c.SemName == "" {
		errs = append(errs, errors.New("shared memory and semaphore names are required"))
	}
	if c.ShmName == c.SemName+".lock" {
		errs = append(errs, fmt.Errorf("shared memory name %q collides with the semaphore lock file", c.ShmName))
	}
	if c.Target <= 0 {
		errs = append(errs, fmt.Errorf("target must be positive, got %d", c.Target))
	}
	if c.PollInterval < 0 || c.FlipDelay < 0 || c.StartupDelay < 0 || c.StartupTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	switch c.StartupMode {
	case StartupLegacy, StartupBackoff, StartupWatch:
	default:
		errs = append(errs, fmt.Errorf("unknown startup mode %q", c.StartupMode))
	}
	return errors.Join(errs...)
}

// Env renders the configuration back into environment assignments, for handing
// an identical configuration to child processes.
func (c *Config) Env() []string {
	return []string{
		Prefix + "_DIR=" + c.Dir,
		Prefix + "_SHM_NAME=" + c.ShmName,
		Prefix + "_SEM_NAME=" + c.SemName,
		fmt.Sprintf("%s_TARGET=%d", Prefix, c.Target),
		Prefix + "_POLL_INTERVAL=" + c.PollInterval.String(),
		Prefix + "_FLIP_DELAY=" + c.FlipDelay.String(),
		Prefix + "_STARTUP_DELAY=" + c.StartupDelay.String(),
		Prefix + "_STARTUP_MODE=" + c.StartupMode,
		Prefix + "_STARTUP_TIMEOUT=" + c.StartupTimeout.String(),
		Prefix + "_LOG_LEVEL=" + c.LogLevel,
		fmt.Sprintf("%s_LOG_DEV=%t", Prefix, c.LogDev),
		Prefix + "_AUDIT_DIR=" + c.AuditDir,
		Prefix + "_METRICS_FILE=" + c.MetricsFile,
	}
}
