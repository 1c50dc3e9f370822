package config

import (
	"fmt"
	"time"
)

// Execution strategies.
const (
	StrategyThreads = "threads"
	StrategyStepped = "stepped"
)

// DispatchConfig selects and tunes the execution strategy.
type DispatchConfig struct {
	Strategy string `yaml:"strategy"` // threads, stepped

	// Stepped mode
	Ticks        int64  `yaml:"ticks"`         // 0 = until every agent stops
	Parallel     bool   `yaml:"parallel"`      // run the agents of a tick concurrently
	TickDuration string `yaml:"tick_duration"` // converts sleep requests into ticks

	// Thread mode
	CyclesPerSecond float64 `yaml:"cycles_per_second"` // 0 = unlimited
	Burst           int     `yaml:"burst"`

	// Wall-clock bound for the whole run
	Timeout string `yaml:"timeout"`
}

func (d DispatchConfig) validate() error {
	switch d.Strategy {
	case StrategyThreads, StrategyStepped:
	default:
		return fmt.Errorf("invalid dispatch strategy: %q (valid: %s, %s)", d.Strategy, StrategyThreads, StrategyStepped)
	}
	if d.Ticks < 0 {
		return fmt.Errorf("ticks must be non-negative, got %d", d.Ticks)
	}
	if d.CyclesPerSecond < 0 {
		return fmt.Errorf("cycles_per_second must be non-negative, got %v", d.CyclesPerSecond)
	}
	if d.Timeout != "" && d.Timeout != "0" {
		if _, err := time.ParseDuration(d.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", d.Timeout, err)
		}
	}
	return nil
}
