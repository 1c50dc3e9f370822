// Package config loads the runtime configuration of a multi-agent run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
type Config struct {
	// Core settings
	Name string `yaml:"name"`

	// Execution strategy
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Cycle trace persistence
	Trace TraceConfig `yaml:"trace"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TraceConfig configures the cycle trace database.
type TraceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "bdi",

		Dispatch: DispatchConfig{
			Strategy:        StrategyThreads,
			Ticks:           0,
			Parallel:        false,
			CyclesPerSecond: 0,
			Burst:           1,
			TickDuration:    "1ms",
			Timeout:         "30s",
		},

		Trace: TraceConfig{
			Enabled:      false,
			DatabasePath: ".bdi/traces.db",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Variables from a .env file next to the config are loaded first;
// variables already set in the process win.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if s := os.Getenv("BDI_STRATEGY"); s != "" {
		c.Dispatch.Strategy = strings.ToLower(s)
	}
	if s := os.Getenv("BDI_TICKS"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			c.Dispatch.Ticks = n
		}
	}
	if s := os.Getenv("BDI_PARALLEL"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			c.Dispatch.Parallel = b
		}
	}

	// Trace database from environment enables tracing
	if path := os.Getenv("BDI_TRACE_DB"); path != "" {
		c.Trace.DatabasePath = path
		c.Trace.Enabled = true
	}

	if lvl := os.Getenv("BDI_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = strings.ToLower(lvl)
	}
	if s := os.Getenv("BDI_DEBUG"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// GetTimeout returns the run timeout. Zero means no timeout.
func (c *Config) GetTimeout() time.Duration {
	if c.Dispatch.Timeout == "" || c.Dispatch.Timeout == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.Dispatch.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetTickDuration returns how long one tick lasts when converting sleeps
// in stepped runs.
func (c *Config) GetTickDuration() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.TickDuration)
	if err != nil || d <= 0 {
		return time.Millisecond
	}
	return d
}

// ValidLogLevels lists accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Dispatch.validate(); err != nil {
		return err
	}

	if c.Trace.Enabled && c.Trace.DatabasePath == "" {
		return fmt.Errorf("trace enabled but no database_path configured (set BDI_TRACE_DB)")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}
