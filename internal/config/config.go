// Package config loads engine configuration from a YAML file with
// environment overrides for deploy-specific values and secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment override names. Secrets never live in the YAML file.
const (
	databaseDSNEnv   = "REVIEWRANK_DATABASE_DSN"
	claudeAPIKeyEnv  = "ANTHROPIC_API_KEY"
	claudeModelEnv   = "REVIEWRANK_CLAUDE_MODEL"
	youtubeAPIKeyEnv = "YOUTUBE_API_KEY"
	metricsPortEnv   = "REVIEWRANK_METRICS_PORT"
	proxyFileEnv     = "REVIEWRANK_PROXY_FILE"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "5m" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string or an integer second count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value at line %d", value.Line)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every setting the engine needs.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sources  SourcesConfig  `yaml:"sources"`

	// Credibility overrides the per-source-type base weights.
	Credibility map[string]float64 `yaml:"credibility"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ScraperConfig tunes the shared fetch substrate.
type ScraperConfig struct {
	Timeout         Duration `yaml:"timeout"`
	MaxRedirects    int      `yaml:"maxRedirects"`
	RequestInterval Duration `yaml:"requestInterval"`
	Jitter          Duration `yaml:"jitter"`
	Fingerprint     string   `yaml:"fingerprint"`
	ProxyFile       string   `yaml:"proxyFile"`
	UseCookieJar    bool     `yaml:"useCookieJar"`
}

// AnalyzerConfig wires the Claude text backend.
type AnalyzerConfig struct {
	APIKey   string   `yaml:"apiKey"`
	Model    string   `yaml:"model"`
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// PipelineConfig bounds a pipeline run.
type PipelineConfig struct {
	ItemsPerAdapter int      `yaml:"itemsPerAdapter"`
	AdapterTimeout  Duration `yaml:"adapterTimeout"`
	RunTimeout      Duration `yaml:"runTimeout"`
	MaxRetries      int      `yaml:"maxRetries"`
	RetryBackoff    Duration `yaml:"retryBackoff"`

	// Freshness is how old a rating may get before `refresh` re-runs it.
	Freshness Duration `yaml:"freshness"`
	// RefreshLimit caps how many products one refresh invocation handles.
	RefreshLimit int `yaml:"refreshLimit"`
}

// SourcesConfig enables and configures the concrete adapters.
type SourcesConfig struct {
	Reddit        bool   `yaml:"reddit"`
	YouTube       bool   `yaml:"youtube"`
	YouTubeAPIKey string `yaml:"youtubeApiKey"`
	Editorial     bool   `yaml:"editorial"`
	Forums        bool   `yaml:"forums"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "reviewrank.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Scraper: ScraperConfig{
			Timeout:         Duration(30 * time.Second),
			MaxRedirects:    5,
			RequestInterval: Duration(2 * time.Second),
			Jitter:          Duration(500 * time.Millisecond),
			Fingerprint:     "chrome",
			UseCookieJar:    true,
		},
		Analyzer: AnalyzerConfig{
			Model:   "claude-3-5-haiku-20241022",
			Timeout: Duration(60 * time.Second),
		},
		Pipeline: PipelineConfig{
			ItemsPerAdapter: 10,
			AdapterTimeout:  Duration(60 * time.Second),
			RunTimeout:      Duration(5 * time.Minute),
			MaxRetries:      2,
			RetryBackoff:    Duration(2 * time.Second),
			Freshness:       Duration(7 * 24 * time.Hour),
			RefreshLimit:    50,
		},
		Sources: SourcesConfig{
			Reddit:    true,
			YouTube:   true,
			Editorial: true,
			Forums:    true,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(claudeAPIKeyEnv); v != "" {
		c.Analyzer.APIKey = v
	}
	if v := os.Getenv(claudeModelEnv); v != "" {
		c.Analyzer.Model = v
	}
	if v := os.Getenv(youtubeAPIKeyEnv); v != "" {
		c.Sources.YouTubeAPIKey = v
	}
	if v := os.Getenv(proxyFileEnv); v != "" {
		c.Scraper.ProxyFile = v
	}
	if v := os.Getenv(metricsPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Metrics.Port = port
			c.Metrics.Enabled = true
		}
	}
}
