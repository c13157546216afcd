// Package config loads and validates the overseer configuration file. All
// fields have working defaults; a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"overseer/internal/types"
)

// WorkerConfig selects and tunes the generation backend.
type WorkerConfig struct {
	// Provider is one of "subprocess", "http", or "mock".
	Provider string `yaml:"provider"`
	// Command and Args apply to the subprocess provider.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Endpoint and APIKeyEnv apply to the http provider. The key itself is
	// read from the named environment variable, never from the file.
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	// TimeoutSeconds bounds one invocation.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// OutputFormat is "text" or "json".
	OutputFormat string `yaml:"output_format"`
}

// RoutingConfig overrides the per-category delegation cost thresholds.
type RoutingConfig struct {
	TokenThresholds map[string]int `yaml:"token_thresholds"`
}

// CategoryCriteria overrides thresholds and phase weights for one category.
type CategoryCriteria struct {
	Pass         float64            `yaml:"pass"`
	Enhance      float64            `yaml:"enhance"`
	PhaseWeights map[string]float64 `yaml:"phase_weights,omitempty"`
}

// RetryConfig tunes the retry coordinator.
type RetryConfig struct {
	MaxRetries  int  `yaml:"max_retries"`
	AutoEnhance bool `yaml:"auto_enhance"`
}

// LedgerConfig locates the feedback database.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the root of the configuration file.
type Config struct {
	Worker   WorkerConfig                `yaml:"worker"`
	Routing  RoutingConfig               `yaml:"routing"`
	Criteria map[string]CategoryCriteria `yaml:"criteria,omitempty"`
	Retry    RetryConfig                 `yaml:"retry"`
	Ledger   LedgerConfig                `yaml:"ledger"`
	Logging  LoggingConfig               `yaml:"logging"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Provider:       "subprocess",
			Command:        "claude",
			Model:          "sonnet",
			TimeoutSeconds: 300,
			OutputFormat:   string(types.OutputJSON),
		},
		Retry: RetryConfig{
			MaxRetries:  2,
			AutoEnhance: true,
		},
		Ledger: LedgerConfig{
			Path: ".overseer/ledger.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. An absent file yields
// the defaults; a malformed or invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with. Threshold
// and weight semantics are re-checked by the criteria registry; this catches
// the structural mistakes early with file-level context.
func (c *Config) Validate() error {
	switch c.Worker.Provider {
	case "subprocess", "http", "mock":
	default:
		return fmt.Errorf("worker.provider %q: must be subprocess, http, or mock", c.Worker.Provider)
	}
	if c.Worker.Provider == "http" && c.Worker.Endpoint == "" {
		return errors.New("worker.endpoint required for the http provider")
	}
	if c.Worker.TimeoutSeconds < 0 {
		return errors.New("worker.timeout_seconds must not be negative")
	}
	switch c.Worker.OutputFormat {
	case "", string(types.OutputText), string(types.OutputJSON):
	default:
		return fmt.Errorf("worker.output_format %q: must be text or json", c.Worker.OutputFormat)
	}

	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		return fmt.Errorf("retry.max_retries %d: must be between 0 and 10", c.Retry.MaxRetries)
	}

	for name, thresh := range c.Routing.TokenThresholds {
		if !types.TaskCategory(name).Valid() {
			return fmt.Errorf("routing.token_thresholds: unknown category %q", name)
		}
		if thresh <= 0 {
			return fmt.Errorf("routing.token_thresholds.%s: must be positive", name)
		}
	}

	for name, cc := range c.Criteria {
		if !types.TaskCategory(name).Valid() {
			return fmt.Errorf("criteria: unknown category %q", name)
		}
		if cc.Pass <= 0 || cc.Pass > 1 || cc.Enhance <= 0 || cc.Enhance >= cc.Pass {
			return fmt.Errorf("criteria.%s: need 0 < enhance < pass <= 1, got pass=%v enhance=%v",
				name, cc.Pass, cc.Enhance)
		}
		for phase := range cc.PhaseWeights {
			switch types.Phase(phase) {
			case types.PhaseCompleteness, types.PhaseCorrectness, types.PhaseQuality, types.PhaseFormat:
			default:
				return fmt.Errorf("criteria.%s.phase_weights: unknown phase %q", name, phase)
			}
		}
	}

	if c.Ledger.Path == "" {
		return errors.New("ledger.path must not be empty")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}

// Timeout returns the worker timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Worker.TimeoutSeconds) * time.Second
}

// OutputMode returns the configured worker output mode.
func (c *Config) OutputMode() types.OutputMode {
	if c.Worker.OutputFormat == "" {
		return types.OutputJSON
	}
	return types.OutputMode(c.Worker.OutputFormat)
}

// Thresholds converts the routing overrides onto the typed category map.
// Returns nil when nothing is overridden so callers fall back to defaults.
func (c *Config) Thresholds(defaults map[types.TaskCategory]int) map[types.TaskCategory]int {
	if len(c.Routing.TokenThresholds) == 0 {
		return defaults
	}
	merged := make(map[types.TaskCategory]int, len(defaults))
	for cat, v := range defaults {
		merged[cat] = v
	}
	for name, v := range c.Routing.TokenThresholds {
		merged[types.TaskCategory(name)] = v
	}
	return merged
}
