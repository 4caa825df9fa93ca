package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the complete gtm-factory configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" toml:"store"`
	Planner    PlannerConfig    `yaml:"planner" toml:"planner"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" toml:"dispatcher"`
	Synthesis  SynthesisConfig  `yaml:"synthesis" toml:"synthesis"`
	Index      IndexConfig      `yaml:"index" toml:"index"`
	Model      ModelConfig      `yaml:"model" toml:"model"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// StoreConfig locates the session store. A CacheTTL of zero keeps the store
// default; a negative one disables the read cache.
type StoreConfig struct {
	Root     string        `yaml:"root" toml:"root"`
	CacheTTL time.Duration `yaml:"-" toml:"-"`

	CacheTTLRaw string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// PlannerConfig bounds the fan-out of a drop.
type PlannerConfig struct {
	MaxWorkers     int           `yaml:"max_workers" toml:"max_workers"`
	MaxUnknown     int           `yaml:"max_unknown" toml:"max_unknown"`
	TokenBudget    int           `yaml:"token_budget" toml:"token_budget"`
	RelatedLimit   int           `yaml:"related_limit" toml:"related_limit"`
	MissionTimeout time.Duration `yaml:"-" toml:"-"`

	MissionTimeoutRaw string `yaml:"mission_timeout" toml:"mission_timeout"`
}

// DispatcherConfig tunes worker execution. MaxParallel of zero runs every
// mission of a drop at once.
type DispatcherConfig struct {
	MaxParallel int           `yaml:"max_parallel" toml:"max_parallel"`
	Backoff     time.Duration `yaml:"-" toml:"-"`

	BackoffRaw string `yaml:"backoff" toml:"backoff"`
}

// Source policies for effective claim confidence.
const (
	SourcePolicyURL      = "url"
	SourcePolicyReported = "reported"
)

// SynthesisConfig selects how sources cap a claim's reported confidence.
// "url" rates sources without an http(s) URL as Low; "reported" trusts the
// worker's confidence as long as the claim cites a source.
type SynthesisConfig struct {
	SourcePolicy string `yaml:"source_policy" toml:"source_policy"`
}

// Catalog backends.
const (
	CatalogMemory = "memory"
	CatalogSQLite = "sqlite"
)

// IndexConfig selects the discovery catalog. Path defaults to catalog.db
// under the store root for the sqlite backend.
type IndexConfig struct {
	Catalog     string `yaml:"catalog" toml:"catalog"`
	Path        string `yaml:"path" toml:"path"`
	MaxFindings int    `yaml:"max_findings" toml:"max_findings"`
}

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// ModelConfig configures the language model behind workers and, when
// ExtractWithModel or AnalyzeWithModel is set, the context extractor or the
// critical analyst.
type ModelConfig struct {
	Provider         string  `yaml:"provider" toml:"provider"`
	Name             string  `yaml:"name" toml:"name"`
	APIKey           string  `yaml:"api_key" toml:"api_key"`
	Temperature      float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens        int64   `yaml:"max_tokens" toml:"max_tokens"`
	CostPer1KTokens  float64 `yaml:"cost_per_1k_tokens" toml:"cost_per_1k_tokens"`
	ExtractWithModel bool    `yaml:"extract_with_model" toml:"extract_with_model"`
	AnalyzeWithModel bool    `yaml:"analyze_with_model" toml:"analyze_with_model"`
}

// LoggingConfig configures the log sink. An empty File logs to stderr with
// slog; otherwise entries go to a rotated JSON file through zap.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
	Console    bool   `yaml:"console" toml:"console"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Root: ".gtm-factory"},
		Planner: PlannerConfig{
			MaxWorkers:     4,
			MaxUnknown:     2,
			TokenBudget:    4000,
			RelatedLimit:   3,
			MissionTimeout: 5 * time.Minute,
		},
		Dispatcher: DispatcherConfig{MaxParallel: 4, Backoff: 500 * time.Millisecond},
		Synthesis:  SynthesisConfig{SourcePolicy: SourcePolicyURL},
		Index:      IndexConfig{Catalog: CatalogMemory, MaxFindings: 2},
		Model:      ModelConfig{Provider: ProviderAnthropic, Temperature: 0.2, MaxTokens: 4096},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file. The format follows the extension: .toml
// files are TOML, everything else is YAML. Keys missing from the file keep
// their Default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(expandEnvVars(string(data)), formatOf(path))
	if err != nil {
		return nil, err
	}
	if cfg.Index.Catalog == CatalogSQLite && cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join(cfg.Store.Root, "catalog.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Parse decodes already expanded content in format "yaml" or "toml" over the
// defaults and parses the duration fields.
func Parse(content, format string) (*Config, error) {
	cfg := Default()
	switch format {
	case "toml":
		if _, err := toml.Decode(content, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case "yaml", "":
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	return cfg, nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value. Unset
// variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVar.FindStringSubmatch(match)[1])
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"store.cache_ttl", cfg.Store.CacheTTLRaw, &cfg.Store.CacheTTL},
		{"planner.mission_timeout", cfg.Planner.MissionTimeoutRaw, &cfg.Planner.MissionTimeout},
		{"dispatcher.backoff", cfg.Dispatcher.BackoffRaw, &cfg.Dispatcher.Backoff},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that every setting is usable and returns the first problem.
func (c *Config) Validate() error {
	if c.Store.Root == "" {
		return fmt.Errorf("store.root is required")
	}
	if c.Planner.MaxWorkers < 1 {
		return fmt.Errorf("planner.max_workers must be at least 1")
	}
	if c.Planner.MaxUnknown < 0 || c.Planner.MaxUnknown > 4 {
		return fmt.Errorf("planner.max_unknown must be between 0 and 4")
	}
	if c.Planner.TokenBudget <= 0 {
		return fmt.Errorf("planner.token_budget must be positive")
	}
	if c.Planner.MissionTimeout <= 0 {
		return fmt.Errorf("planner.mission_timeout must be positive")
	}
	if c.Dispatcher.MaxParallel < 0 {
		return fmt.Errorf("dispatcher.max_parallel must not be negative")
	}
	if c.Dispatcher.Backoff < 0 {
		return fmt.Errorf("dispatcher.backoff must not be negative")
	}
	switch c.Synthesis.SourcePolicy {
	case SourcePolicyURL, SourcePolicyReported:
	default:
		return fmt.Errorf("synthesis.source_policy must be %q or %q", SourcePolicyURL, SourcePolicyReported)
	}
	switch c.Index.Catalog {
	case CatalogMemory:
	case CatalogSQLite:
		if c.Index.Path == "" {
			return fmt.Errorf("index.path is required for the sqlite catalog")
		}
	default:
		return fmt.Errorf("index.catalog must be %q or %q", CatalogMemory, CatalogSQLite)
	}
	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("model.provider must be one of %s, %s, %s", ProviderAnthropic, ProviderOpenAI, ProviderMock)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not a level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}
