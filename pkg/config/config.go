// Package config holds the engine's tunable settings. Every threshold
// the pipeline uses (scoring weights, budget ceiling, monitor limits) is
// a design choice rather than a contractual constant, so all of them are
// exposed here and decoded from viper: config file, SKILLET_* environment
// variables and bound CLI flags.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/matcher"
	"github.com/jingkaihe/skillet/pkg/monitor"
)

// WeightsConfig are the lexical scorer multipliers
type WeightsConfig struct {
	Tag      float64 `mapstructure:"tag" yaml:"tag"`
	Clause   float64 `mapstructure:"clause" yaml:"clause"`
	Category float64 `mapstructure:"category" yaml:"category"`
}

// MonitorConfig are the drift thresholds
type MonitorConfig struct {
	WarningMessages   int    `mapstructure:"warning_messages" yaml:"warning_messages"`
	ActionMessages    int    `mapstructure:"action_messages" yaml:"action_messages"`
	WarningCategories int    `mapstructure:"warning_categories" yaml:"warning_categories"`
	ActionCategories  int    `mapstructure:"action_categories" yaml:"action_categories"`
	WarningRepeats    int    `mapstructure:"warning_repeats" yaml:"warning_repeats"`
	ActionRepeats     int    `mapstructure:"action_repeats" yaml:"action_repeats"`
	SpawnLimit        int    `mapstructure:"spawn_limit" yaml:"spawn_limit"`
	CategoryWindow    int    `mapstructure:"category_window" yaml:"category_window"`
	FingerprintWindow int    `mapstructure:"fingerprint_window" yaml:"fingerprint_window"`
	StateDir          string `mapstructure:"state_dir" yaml:"state_dir"`
}

// HistoryConfig controls the optional resolution log
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path"`
}

// TracingConfig controls OpenTelemetry tracing
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Sampler string  `mapstructure:"sampler" yaml:"sampler"`
	Ratio   float64 `mapstructure:"ratio" yaml:"ratio"`
}

// Config is the full engine configuration
type Config struct {
	CatalogRoots  []string       `mapstructure:"catalog_roots" yaml:"catalog_roots"`
	AllowPatterns []string       `mapstructure:"allow_patterns" yaml:"allow_patterns,omitempty"`
	DenyPatterns  []string       `mapstructure:"deny_patterns" yaml:"deny_patterns,omitempty"`
	Weights       WeightsConfig  `mapstructure:"weights" yaml:"weights"`
	BudgetTokens  int            `mapstructure:"budget_tokens" yaml:"budget_tokens"`
	Minimums      map[string]int `mapstructure:"category_minimums" yaml:"category_minimums,omitempty"`
	Threshold     int            `mapstructure:"disclosure_threshold" yaml:"disclosure_threshold"`
	AlwaysOn      []string       `mapstructure:"always_on" yaml:"always_on,omitempty"`
	Monitor       MonitorConfig  `mapstructure:"monitor" yaml:"monitor"`
	History       HistoryConfig  `mapstructure:"history" yaml:"history"`
	Tracing       TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// Default returns the standard configuration
func Default() *Config {
	thresholds := monitor.DefaultThresholds()
	return &Config{
		CatalogRoots: []string{}, // empty means the builder's default roots
		Weights:      WeightsConfig{Tag: 3, Clause: 2, Category: 1},
		BudgetTokens: 12000,
		Threshold:    1,
		Monitor: MonitorConfig{
			WarningMessages:   thresholds.WarningMessages,
			ActionMessages:    thresholds.ActionMessages,
			WarningCategories: thresholds.WarningCategories,
			ActionCategories:  thresholds.ActionCategories,
			WarningRepeats:    thresholds.WarningRepeats,
			ActionRepeats:     thresholds.ActionRepeats,
			SpawnLimit:        thresholds.SpawnLimit,
			CategoryWindow:    thresholds.CategoryWindow,
			FingerprintWindow: thresholds.FingerprintWindow,
		},
		History: HistoryConfig{Enabled: false},
		Tracing: TracingConfig{Sampler: "ratio", Ratio: 1},
	}
}

// Load decodes the configuration from viper on top of the defaults
func Load() (*Config, error) {
	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects nonsensical settings before they reach the pipeline
func (c *Config) Validate() error {
	if c.BudgetTokens <= 0 {
		return errors.Errorf("budget_tokens must be positive, got %d", c.BudgetTokens)
	}
	if c.Threshold < 0 {
		return errors.Errorf("disclosure_threshold must not be negative, got %d", c.Threshold)
	}
	if c.Weights.Tag < 0 || c.Weights.Clause < 0 || c.Weights.Category < 0 {
		return errors.New("scoring weights must not be negative")
	}
	for name, min := range c.Minimums {
		if _, err := catalog.ParseCategory(name); err != nil {
			return errors.Wrapf(err, "category_minimums")
		}
		if min < 0 {
			return errors.Errorf("category_minimums.%s must not be negative, got %d", name, min)
		}
	}

	m := c.Monitor
	if m.WarningMessages <= 0 || m.ActionMessages <= 0 {
		return errors.New("monitor message thresholds must be positive")
	}
	if m.WarningMessages >= m.ActionMessages {
		return errors.Errorf("monitor warning_messages (%d) must be below action_messages (%d)", m.WarningMessages, m.ActionMessages)
	}
	if m.WarningCategories <= 0 || m.ActionCategories <= 0 || m.WarningCategories >= m.ActionCategories {
		return errors.Errorf("monitor warning_categories (%d) must be positive and below action_categories (%d)", m.WarningCategories, m.ActionCategories)
	}
	if m.WarningRepeats <= 0 || m.ActionRepeats <= 0 || m.WarningRepeats >= m.ActionRepeats {
		return errors.Errorf("monitor warning_repeats (%d) must be positive and below action_repeats (%d)", m.WarningRepeats, m.ActionRepeats)
	}
	if m.SpawnLimit <= 0 {
		return errors.Errorf("monitor spawn_limit must be positive, got %d", m.SpawnLimit)
	}
	if m.CategoryWindow <= 0 || m.FingerprintWindow <= 0 {
		return errors.New("monitor window sizes must be positive")
	}

	if c.Tracing.Ratio < 0 || c.Tracing.Ratio > 1 {
		return errors.Errorf("tracing.ratio must be within [0, 1], got %g", c.Tracing.Ratio)
	}

	return nil
}

// MatcherWeights converts the configured weights for the matcher
func (c *Config) MatcherWeights() matcher.Weights {
	return matcher.Weights{
		Tag:      c.Weights.Tag,
		Clause:   c.Weights.Clause,
		Category: c.Weights.Category,
	}
}

// CategoryMinimums converts the configured minimums for the allocator.
// Validate has already rejected unknown category names.
func (c *Config) CategoryMinimums() map[catalog.Category]int {
	if len(c.Minimums) == 0 {
		return nil
	}
	minimums := make(map[catalog.Category]int, len(c.Minimums))
	for name, min := range c.Minimums {
		minimums[catalog.Category(name)] = min
	}
	return minimums
}

// MonitorThresholds converts the configured limits for the monitor
func (c *Config) MonitorThresholds() monitor.Thresholds {
	return monitor.Thresholds{
		WarningMessages:   c.Monitor.WarningMessages,
		ActionMessages:    c.Monitor.ActionMessages,
		WarningCategories: c.Monitor.WarningCategories,
		ActionCategories:  c.Monitor.ActionCategories,
		WarningRepeats:    c.Monitor.WarningRepeats,
		ActionRepeats:     c.Monitor.ActionRepeats,
		SpawnLimit:        c.Monitor.SpawnLimit,
		CategoryWindow:    c.Monitor.CategoryWindow,
		FingerprintWindow: c.Monitor.FingerprintWindow,
	}
}
