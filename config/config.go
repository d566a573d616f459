// Package config loads the goinject CLI settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"goinject/process"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration
type Config struct {
	// WaitTimeout bounds every remote thread, e.g. "10s"
	WaitTimeout string `yaml:"wait_timeout"`

	SkipSharedBaseCheck bool `yaml:"skip_shared_base_check"`

	// Module is injected by `goinject inject` when no path is given on the command line
	Module string `yaml:"module"`

	// Entry is an export of Module called after injection, empty to skip the call
	Entry string `yaml:"entry"`

	// EntryArg is passed to Entry by pointer
	EntryArg uint32 `yaml:"entry_arg"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		WaitTimeout: process.DefaultWaitTimeout.String(),
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("GOINJECT_WAIT_TIMEOUT"); v != "" {
		c.WaitTimeout = v
	}
	if v := os.Getenv("GOINJECT_MODULE"); v != "" {
		c.Module = v
	}
	if v := os.Getenv("GOINJECT_ENTRY"); v != "" {
		c.Entry = v
	}
	if v := os.Getenv("GOINJECT_ENTRY_ARG"); v != "" {
		arg, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid GOINJECT_ENTRY_ARG %q: %w", v, err)
		}
		c.EntryArg = uint32(arg)
	}
	if v := os.Getenv("GOINJECT_SKIP_SHARED_BASE_CHECK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GOINJECT_SKIP_SHARED_BASE_CHECK %q: %w", v, err)
		}
		c.SkipSharedBaseCheck = b
	}
	return nil
}

// GetWaitTimeout returns the wait timeout as a duration
func (c *Config) GetWaitTimeout() time.Duration {
	d, err := time.ParseDuration(c.WaitTimeout)
	if err != nil || d <= 0 {
		return process.DefaultWaitTimeout
	}
	return d
}

// Validate rejects settings the backends cannot honor
func (c *Config) Validate() error {
	if c.WaitTimeout == "" {
		return nil
	}
	d, err := time.ParseDuration(c.WaitTimeout)
	if err != nil {
		return fmt.Errorf("invalid wait_timeout %q: %w", c.WaitTimeout, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid wait_timeout %q: must be positive", c.WaitTimeout)
	}
	return nil
}

// Options converts the configuration into backend options
func (c *Config) Options() []process.Option {
	return []process.Option{
		process.WithWaitTimeout(c.GetWaitTimeout()),
		process.WithSkipSharedBaseCheck(c.SkipSharedBaseCheck),
	}
}
