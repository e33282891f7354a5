package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/batch"
	"github.com/dusk-indust/wavecheck/internal/cost"
	"github.com/dusk-indust/wavecheck/internal/hybrid"
	"github.com/dusk-indust/wavecheck/internal/scan"
	"github.com/dusk-indust/wavecheck/internal/threshold"
)

func TestDefaults_MatchBuiltIns(t *testing.T) {
	cfg, err := Defaults()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, threshold.DefaultTable(), cfg.ThresholdTable())
	assert.Equal(t, batch.DefaultBackoff(), cfg.Batch)
	assert.Equal(t, hybrid.DefaultConfig(), cfg.HybridConfig())
	assert.Equal(t, agent.DefaultMaxFileBytes, cfg.API.MaxFileBytes)
	assert.Equal(t, scan.DefaultPatterns(), cfg.Patterns)

	want := agent.DefaultCatalogue()
	require.Len(t, cfg.Agents, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, cfg.Agents[i].ID)
		assert.Equal(t, want[i].Wave, cfg.Agents[i].Wave)
		assert.Equal(t, want[i].Tier, cfg.Agents[i].Tier)
		assert.Equal(t, want[i].Mode, cfg.Agents[i].Mode)
		assert.Equal(t, want[i].Structural, cfg.Agents[i].Structural)
	}

	m, err := cfg.CostModel()
	require.NoError(t, err)
	def := cost.DefaultModel()
	for _, tier := range def.Tiers() {
		got, ok := m.Pricing(tier)
		require.True(t, ok)
		wantP, _ := def.Pricing(tier)
		assert.Equal(t, wantP, got)
	}
	assert.Equal(t, cost.TierMid, m.Fallback())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.Source)
	assert.Len(t, cfg.Agents, 5)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := `
deepDive:
  maxConcurrent: 5
  sampling:
    maxSections: 10
  voting:
    tier: cheap
thresholds:
  code-reviewer: {kind: score, minScore: 7.5}
agents:
  - id: security-auditor
    wave: 1
    tier: cheap
    mode: hybrid
batch:
  maxWait: 30m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wavecheck.yml"), []byte(yml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wavecheck.yml"), cfg.Source)

	assert.Equal(t, 5, cfg.DeepDive.MaxConcurrent)
	assert.Equal(t, 10, cfg.DeepDive.Sampling.MaxSections)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.DeepDive.ContextTokens)
	assert.Equal(t, 3, cfg.DeepDive.Voting.Samples)
	assert.Equal(t, cost.TierCheap, cfg.HybridConfig().VoteTier)
	assert.Equal(t, cost.TierExpensive, cfg.HybridConfig().DeepDiveTier)

	// Maps merge, lists replace.
	assert.Equal(t, 7.5, cfg.Thresholds["code-reviewer"].MinScore)
	assert.Equal(t, threshold.KindCoverage, cfg.Thresholds["test-generator"].Kind)
	require.Len(t, cfg.Agents, 1)

	assert.Equal(t, 30*time.Minute, cfg.Batch.MaxWait)
	assert.Equal(t, 60*time.Second, cfg.Batch.Base)
}

func TestLoad_YAMLExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wavecheck.yaml"), []byte("log:\n  level: debug\n"), 0o644))
	t.Setenv("WAVECHECK_LOG_LEVEL", "")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("WAVECHECK_API_BASE_URL", "http://localhost:9999")
	t.Setenv("WAVECHECK_LOG_LEVEL", "warn")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	t.Setenv("OTEL_SERVICE_NAME", "wavecheck-ci")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.API.Key)
	assert.Equal(t, "http://localhost:9999", cfg.API.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, "wavecheck-ci", cfg.Telemetry.ServiceName)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wavecheck.yml"), []byte("agents: [\n"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"unknown fallback", func(c *Config) { c.FallbackTier = "platinum" }, "fallbackTier"},
		{"unknown deep dive tier", func(c *Config) { c.DeepDive.Tier = "platinum" }, "deepDive.tier"},
		{"zero concurrency", func(c *Config) { c.DeepDive.MaxConcurrent = 0 }, "deepDive"},
		{"no agents", func(c *Config) { c.Agents = nil }, "agents"},
		{"duplicate agent", func(c *Config) { c.Agents = append(c.Agents, c.Agents[0]) }, "agents[5]"},
		{"agent tier", func(c *Config) { c.Agents[0].Tier = "platinum" }, "agents[0].tier"},
		{"bad rule", func(c *Config) { c.Thresholds["x"] = threshold.Rule{Kind: "vibes"} }, "thresholds.x"},
		{"bad pattern", func(c *Config) {
			c.Patterns["x"] = []scan.Pattern{{ID: "p", Severity: 1, Match: "("}}
		}, "patterns"},
		{"bad structure", func(c *Config) { c.Structure.MaxNesting = 0 }, "structure"},
		{"bad batch", func(c *Config) { c.Batch.Factor = 0 }, "batch"},
		{"no file budget", func(c *Config) { c.API.MaxFileBytes = 0 }, "api"},
		{"negative retries", func(c *Config) { c.API.MaxRetries = -1 }, "api.maxRetries"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Defaults()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestModels_FallbackTierServesUnknownTiers(t *testing.T) {
	cfg, err := Defaults()
	require.NoError(t, err)
	cfg.FallbackTier = cost.TierCheap

	m := cfg.Models()
	assert.Equal(t, cfg.Tiers["cheap"].Model, m.For("unknown"))
	assert.Equal(t, cfg.Tiers["mid"].Model, m.For("mid"))
}

func TestResolve(t *testing.T) {
	cfg := &Config{Dir: "/project"}
	assert.Equal(t, filepath.Join("/project", ".build/reports"), cfg.Resolve(".build/reports"))
	assert.Equal(t, "/abs/path", cfg.Resolve("/abs/path"))
	assert.Equal(t, "", cfg.Resolve(""))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}
