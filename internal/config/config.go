// Package config provides configuration management for gh-backup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinWorkers and MaxWorkers bound the per-repository worker pool.
	MinWorkers = 1
	MaxWorkers = 32
)

// Visibility filters repositories by their private flag.
type Visibility string

const (
	VisibilityAll     Visibility = "all"
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// AccountType identifies the kind of GitHub account being exported.
type AccountType string

const (
	// AccountAuto probes the API to decide between org and user.
	AccountAuto AccountType = "auto"
	AccountOrg  AccountType = "org"
	AccountUser AccountType = "user"
)

// RetrySettings configures the per-operation retry policy.
type RetrySettings struct {
	// MaxAttempts is the total attempts per operation, including the first.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64 `yaml:"multiplier"`
	// Jitter is the backoff randomization factor in [0, 1).
	Jitter float64 `yaml:"jitter"`
	// MaxDelay caps a single backoff wait.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// Config represents the gh-backup export configuration.
type Config struct {
	// Account is the organization or user to export.
	Account string `yaml:"account"`
	// AccountType is auto, org, or user.
	AccountType AccountType `yaml:"account_type"`
	// OutputDir is where export directories and archives are written.
	OutputDir string `yaml:"output_dir"`

	// Workers bounds the number of repositories processed concurrently.
	Workers int `yaml:"workers"`

	// OnlyRepos restricts the export to the named repositories.
	OnlyRepos []string `yaml:"only_repos,omitempty"`
	// SkipForks excludes forked repositories.
	SkipForks bool `yaml:"skip_forks"`
	// SkipArchived excludes archived repositories.
	SkipArchived bool `yaml:"skip_archived"`
	// Visibility restricts the export to public or private repositories.
	Visibility Visibility `yaml:"visibility"`

	// Shallow clones with --depth 1 instead of full history.
	Shallow bool `yaml:"shallow"`
	// GC runs git gc --aggressive on each clone before archiving.
	GC bool `yaml:"gc"`
	// SkipIssues disables the issue/PR export stage.
	SkipIssues bool `yaml:"skip_issues"`

	// Compress produces a single archive from the export directory.
	Compress bool `yaml:"compress"`
	// Format is the archive compression algorithm: zst, gz, or xz.
	Format string `yaml:"format"`
	// KeepDir retains the uncompressed directory after archiving.
	KeepDir bool `yaml:"keep_dir"`
	// KeepPartial retains a partially written archive on interruption.
	KeepPartial bool `yaml:"keep_partial"`
	// Verify re-reads the archive after writing to check integrity.
	Verify bool `yaml:"verify"`

	// DryRun lists the job set without executing it.
	DryRun bool `yaml:"dry_run"`

	// Retry is the backoff policy applied to clones and API fetches.
	Retry RetrySettings `yaml:"retry"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		AccountType: AccountAuto,
		OutputDir:   ".",
		Workers:     4,
		Visibility:  VisibilityAll,
		Compress:    true,
		Format:      "zst",
		Retry: RetrySettings{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.25,
			MaxDelay:     30 * time.Second,
		},
	}
}

// Load reads a config file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range or inconsistent values.
func (c *Config) Validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Workers < MinWorkers || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d, got %d", MinWorkers, MaxWorkers, c.Workers)
	}
	switch c.Visibility {
	case VisibilityAll, VisibilityPublic, VisibilityPrivate:
	default:
		return fmt.Errorf("visibility must be all, public, or private, got %q", c.Visibility)
	}
	switch c.AccountType {
	case AccountAuto, AccountOrg, AccountUser:
	default:
		return fmt.Errorf("account type must be auto, org, or user, got %q", c.AccountType)
	}
	switch c.Format {
	case "zst", "gz", "xz":
	default:
		return fmt.Errorf("format must be zst, gz, or xz, got %q", c.Format)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry initial delay must be non-negative, got %s", c.Retry.InitialDelay)
	}
	return nil
}
