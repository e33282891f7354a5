// Package config loads wavecheck settings: embedded defaults, overlaid by
// wavecheck.yml from the project directory, overlaid by the environment.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/batch"
	"github.com/dusk-indust/wavecheck/internal/cost"
	"github.com/dusk-indust/wavecheck/internal/hybrid"
	"github.com/dusk-indust/wavecheck/internal/llm"
	"github.com/dusk-indust/wavecheck/internal/scan"
	"github.com/dusk-indust/wavecheck/internal/threshold"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yml
var defaultsYAML []byte

// FileNames are tried in order in the project directory.
var FileNames = []string{"wavecheck.yml", "wavecheck.yaml"}

// Tier is one cost class.
type Tier struct {
	Model  string  `yaml:"model"`
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Sampling gates phase-2 coverage.
type Sampling struct {
	MaxSections int     `yaml:"maxSections"`
	MaxCost     float64 `yaml:"maxCost"`
}

// Voting configures consistency voting.
type Voting struct {
	Samples       int     `yaml:"samples"`
	MinConfidence float64 `yaml:"minConfidence"`
	Temperature   float64 `yaml:"temperature"`
	Tier          string  `yaml:"tier"`
	OutputTokens  int     `yaml:"outputTokens"`
}

// DeepDive configures phase 2.
type DeepDive struct {
	Tier                    string   `yaml:"tier"`
	MaxConcurrent           int      `yaml:"maxConcurrent"`
	ContextTokens           int      `yaml:"contextTokens"`
	OutputTokens            int      `yaml:"outputTokens"`
	ScanOutputTokensPerFlag int      `yaml:"scanOutputTokensPerFlag"`
	Sampling                Sampling `yaml:"sampling"`
	Voting                  Voting   `yaml:"voting"`
}

// Structure configures the tree-sitter triggers.
type Structure struct {
	MaxFunctionLines int `yaml:"maxFunctionLines"`
	MaxNesting       int `yaml:"maxNesting"`
}

// Paths are relative to the project directory unless absolute.
type Paths struct {
	Pending  string `yaml:"pending"`
	Audit    string `yaml:"audit"`
	Reports  string `yaml:"reports"`
	Findings string `yaml:"findings"`
}

// API configures the Messages API client.
type API struct {
	BaseURL    string        `yaml:"baseURL"`
	MaxTokens  int           `yaml:"maxTokens"`
	MaxRetries int           `yaml:"maxRetries"`
	Timeout    time.Duration `yaml:"timeout"`
	// MaxFileBytes caps how much of each file a direct agent is sent.
	MaxFileBytes int `yaml:"maxFileBytes"`
	// Key is read from ANTHROPIC_API_KEY only.
	Key string `yaml:"-"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName"`
	Insecure    bool   `yaml:"insecure"`
}

// Config is the complete settings tree.
type Config struct {
	FallbackTier string                    `yaml:"fallbackTier"`
	Tiers        map[string]Tier           `yaml:"tiers"`
	DeepDive     DeepDive                  `yaml:"deepDive"`
	Agents       []agent.Descriptor        `yaml:"agents"`
	Thresholds   map[string]threshold.Rule `yaml:"thresholds"`
	Patterns     map[string][]scan.Pattern `yaml:"patterns"`
	Structure    Structure                 `yaml:"structure"`
	Paths        Paths                     `yaml:"paths"`
	Batch        batch.Backoff             `yaml:"batch"`
	API          API                       `yaml:"api"`
	Log          Log                       `yaml:"log"`
	Telemetry    Telemetry                 `yaml:"telemetry"`

	// Dir is the project directory the config was loaded for.
	Dir string `yaml:"-"`
	// Source is the file that overrode the defaults, if any.
	Source string `yaml:"-"`
}

// ValidationError names the offending setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Defaults returns the embedded settings.
func Defaults() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: embedded defaults: %w", err)
	}
	return &cfg, nil
}

// Load reads the defaults, then wavecheck.yml or wavecheck.yaml from dir,
// then .env and the environment. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir

	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		cfg.Source = path
		break
	}

	_ = godotenv.Load(filepath.Join(dir, ".env"))
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.API.Key = getenv("ANTHROPIC_API_KEY")
	if v := getenv("WAVECHECK_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := getenv("WAVECHECK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, ok := c.Tiers[c.FallbackTier]; !ok {
		return &ValidationError{"fallbackTier", fmt.Sprintf("unknown tier %q", c.FallbackTier)}
	}
	for name, t := range c.Tiers {
		if t.Input < 0 || t.Output < 0 {
			return &ValidationError{"tiers." + name, "negative pricing"}
		}
	}
	if _, ok := c.Tiers[c.DeepDive.Tier]; !ok {
		return &ValidationError{"deepDive.tier", fmt.Sprintf("unknown tier %q", c.DeepDive.Tier)}
	}
	if _, ok := c.Tiers[c.DeepDive.Voting.Tier]; !ok {
		return &ValidationError{"deepDive.voting.tier", fmt.Sprintf("unknown tier %q", c.DeepDive.Voting.Tier)}
	}
	if err := c.HybridConfig().Validate(); err != nil {
		return &ValidationError{"deepDive", err.Error()}
	}

	if len(c.Agents) == 0 {
		return &ValidationError{"agents", "no agents configured"}
	}
	seen := make(map[agent.Role]bool, len(c.Agents))
	for i, d := range c.Agents {
		field := fmt.Sprintf("agents[%d]", i)
		if err := d.Validate(); err != nil {
			return &ValidationError{field, err.Error()}
		}
		if seen[d.ID] {
			return &ValidationError{field, fmt.Sprintf("duplicate agent id %q", d.ID)}
		}
		seen[d.ID] = true
		if _, ok := c.Tiers[d.Tier]; !ok {
			return &ValidationError{field + ".tier", fmt.Sprintf("unknown tier %q", d.Tier)}
		}
	}

	for id, rule := range c.Thresholds {
		if err := rule.Validate(); err != nil {
			return &ValidationError{"thresholds." + id, err.Error()}
		}
	}
	if _, err := scan.NewCatalogue(c.Patterns); err != nil {
		return &ValidationError{"patterns", err.Error()}
	}
	if c.Structure.MaxFunctionLines <= 0 || c.Structure.MaxNesting <= 0 {
		return &ValidationError{"structure", "limits must be positive"}
	}
	if err := c.Batch.Validate(); err != nil {
		return &ValidationError{"batch", err.Error()}
	}
	if c.API.MaxTokens <= 0 || c.API.MaxFileBytes <= 0 {
		return &ValidationError{"api", "maxTokens and maxFileBytes must be positive"}
	}
	if c.API.MaxRetries < 0 {
		return &ValidationError{"api.maxRetries", "must not be negative"}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{"log.level", err.Error()}
	}
	return nil
}

// CostModel converts the tier table.
func (c *Config) CostModel() (cost.Model, error) {
	tiers := make(map[string]cost.Pricing, len(c.Tiers))
	for name, t := range c.Tiers {
		tiers[name] = cost.Pricing{Input: t.Input, Output: t.Output}
	}
	return cost.NewModel(tiers, c.FallbackTier)
}

// Models maps tiers to model ids.
func (c *Config) Models() llm.Models {
	m := make(llm.Models, len(c.Tiers))
	for name, t := range c.Tiers {
		m[name] = t.Model
	}
	m[llm.DefaultTier] = c.Tiers[c.FallbackTier].Model
	return m
}

// ThresholdTable returns the rule table.
func (c *Config) ThresholdTable() threshold.Table {
	t := make(threshold.Table, len(c.Thresholds))
	for id, r := range c.Thresholds {
		t[id] = r
	}
	return t
}

// Catalogue compiles the pattern catalogue.
func (c *Config) Catalogue() (*scan.Catalogue, error) {
	return scan.NewCatalogue(c.Patterns)
}

// StructureAnalyzer builds the tree-sitter analyzer.
func (c *Config) StructureAnalyzer() *scan.StructureAnalyzer {
	return scan.NewStructureAnalyzer(c.Structure.MaxFunctionLines, c.Structure.MaxNesting)
}

// HybridConfig returns the phase-2 settings.
func (c *Config) HybridConfig() hybrid.Config {
	return hybrid.Config{
		DeepDiveTier:     c.DeepDive.Tier,
		MaxConcurrent:    c.DeepDive.MaxConcurrent,
		ContextTokens:    c.DeepDive.ContextTokens,
		OutputTokens:     c.DeepDive.OutputTokens,
		MaxSections:      c.DeepDive.Sampling.MaxSections,
		MaxCost:          c.DeepDive.Sampling.MaxCost,
		VoteTier:         c.DeepDive.Voting.Tier,
		VoteSamples:      c.DeepDive.Voting.Samples,
		MinConfidence:    c.DeepDive.Voting.MinConfidence,
		VoteOutputTokens: c.DeepDive.Voting.OutputTokens,
	}
}

// Registry registers the configured agents in file order.
func (c *Config) Registry() (*agent.Registry, error) {
	return agent.NewRegistry(c.Agents...)
}

// Agent returns the configured descriptor for id.
func (c *Config) Agent(id string) (agent.Descriptor, bool) {
	for _, d := range c.Agents {
		if string(d.ID) == id {
			return d, true
		}
	}
	return agent.Descriptor{}, false
}

// Resolve makes a configured path absolute against the project directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// TierNames lists the configured tiers in sorted order.
func (c *Config) TierNames() []string {
	names := make([]string, 0, len(c.Tiers))
	for n := range c.Tiers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
