package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overseer/internal/routing"
	"overseer/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overseer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "subprocess", cfg.Worker.Provider)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Retry.AutoEnhance)
	assert.Equal(t, types.OutputJSON, cfg.OutputMode())
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
worker:
  provider: http
  endpoint: https://example.invalid/v1/messages
  model: test-model
  timeout_seconds: 60
  output_format: text
routing:
  token_thresholds:
    research: 1500
retry:
  max_retries: 1
  auto_enhance: false
ledger:
  path: /tmp/overseer-test.db
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Worker.Provider)
	assert.Equal(t, "test-model", cfg.Worker.Model)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.False(t, cfg.Retry.AutoEnhance)
	assert.Equal(t, types.OutputText, cfg.OutputMode())

	thresholds := cfg.Thresholds(routing.DefaultThresholds())
	assert.Equal(t, 1500, thresholds[types.CategoryResearch])
	assert.Equal(t, routing.DefaultThresholds()[types.CategoryCode], thresholds[types.CategoryCode])
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "worker: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Worker.Provider = "carrier-pigeon" }},
		{"http without endpoint", func(c *Config) { c.Worker.Provider = "http"; c.Worker.Endpoint = "" }},
		{"negative timeout", func(c *Config) { c.Worker.TimeoutSeconds = -1 }},
		{"bad output format", func(c *Config) { c.Worker.OutputFormat = "xml" }},
		{"excessive retries", func(c *Config) { c.Retry.MaxRetries = 50 }},
		{"unknown category threshold", func(c *Config) {
			c.Routing.TokenThresholds = map[string]int{"poetry": 100}
		}},
		{"non-positive threshold", func(c *Config) {
			c.Routing.TokenThresholds = map[string]int{"research": 0}
		}},
		{"inverted criteria thresholds", func(c *Config) {
			c.Criteria = map[string]CategoryCriteria{"code": {Pass: 0.5, Enhance: 0.8}}
		}},
		{"unknown phase", func(c *Config) {
			c.Criteria = map[string]CategoryCriteria{
				"code": {Pass: 0.8, Enhance: 0.6, PhaseWeights: map[string]float64{"vibes": 1.0}},
			}
		}},
		{"empty ledger path", func(c *Config) { c.Ledger.Path = "" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsCriteriaOverride(t *testing.T) {
	cfg := Default()
	cfg.Criteria = map[string]CategoryCriteria{
		"research": {
			Pass:    0.85,
			Enhance: 0.65,
			PhaseWeights: map[string]float64{
				"completeness": 0.4, "correctness": 0.3, "quality": 0.2, "format": 0.1,
			},
		},
	}
	assert.NoError(t, cfg.Validate())
}
