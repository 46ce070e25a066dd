package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/extraction"
	"github.com/introspecthq/agentlens-backend/internal/feedback"
	"github.com/introspecthq/agentlens-backend/internal/platform/envutil"
)

type Server struct {
	Port           string   `yaml:"port"`
	Mode           string   `yaml:"mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Database struct {
	URL string `yaml:"url"`
}

type Redis struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type Provider struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type Extraction struct {
	WindowSize int                            `yaml:"window_size"`
	Stride     int                            `yaml:"stride"`
	Extractors []string                       `yaml:"extractors"`
	Overrides  map[string]extraction.Override `yaml:"overrides"`
}

type Operations struct {
	UnitTimeout time.Duration `yaml:"unit_timeout"`
	// UnitConcurrency also widens the cancel latency bound: a cancel
	// request lets up to this many in-flight units run to completion
	// instead of the single unit the sequential loop allows.
	UnitConcurrency int `yaml:"unit_concurrency"`
}

type Observability struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Stdout       bool   `yaml:"stdout"`
}

type Config struct {
	Server        Server              `yaml:"server"`
	Database      Database            `yaml:"database"`
	Redis         Redis               `yaml:"redis"`
	Provider      Provider            `yaml:"provider"`
	Extraction    Extraction          `yaml:"extraction"`
	Aggregation   feedback.Thresholds `yaml:"aggregation"`
	Operations    Operations          `yaml:"operations"`
	Observability Observability       `yaml:"observability"`
}

// Load reads the YAML file named by AGENTLENS_CONFIG when set, then lets
// environment variables override individual fields, then fills defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := envutil.Str("AGENTLENS_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Server.Port = envutil.Str("PORT", cfg.Server.Port)
	cfg.Server.Mode = envutil.Str("APP_MODE", cfg.Server.Mode)
	cfg.Database.URL = envutil.Str("DATABASE_URL", cfg.Database.URL)
	cfg.Redis.Addr = envutil.Str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Channel = envutil.Str("REDIS_CHANNEL", cfg.Redis.Channel)
	cfg.Provider.BaseURL = envutil.Str("PROVIDER_BASE_URL", cfg.Provider.BaseURL)
	cfg.Provider.APIKey = envutil.Str("PROVIDER_API_KEY", cfg.Provider.APIKey)
	cfg.Provider.Timeout = envutil.Duration("PROVIDER_TIMEOUT", cfg.Provider.Timeout)
	cfg.Provider.MaxRetries = envutil.Int("PROVIDER_MAX_RETRIES", cfg.Provider.MaxRetries)
	cfg.Extraction.WindowSize = envutil.Int("EXTRACTION_WINDOW_SIZE", cfg.Extraction.WindowSize)
	cfg.Extraction.Stride = envutil.Int("EXTRACTION_STRIDE", cfg.Extraction.Stride)
	cfg.Aggregation.RefreshCount = envutil.Int("AGGREGATION_REFRESH_COUNT", cfg.Aggregation.RefreshCount)
	cfg.Aggregation.MinFeedbackThreshold = envutil.Int("AGGREGATION_MIN_FEEDBACK_THRESHOLD", cfg.Aggregation.MinFeedbackThreshold)
	cfg.Operations.UnitTimeout = envutil.Duration("OPERATIONS_UNIT_TIMEOUT", cfg.Operations.UnitTimeout)
	cfg.Operations.UnitConcurrency = envutil.Int("OPERATIONS_UNIT_CONCURRENCY", cfg.Operations.UnitConcurrency)
	cfg.Observability.OTLPEndpoint = envutil.Str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "development"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 120 * time.Second
	}
	if c.Provider.MaxRetries <= 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Extraction.WindowSize <= 0 {
		c.Extraction.WindowSize = 50
	}
	if c.Extraction.Stride <= 0 {
		c.Extraction.Stride = 25
	}
	if len(c.Extraction.Extractors) == 0 {
		c.Extraction.Extractors = []string{"profile"}
	}
	if c.Aggregation.RefreshCount <= 0 {
		c.Aggregation.RefreshCount = 10
	}
	if c.Aggregation.MinFeedbackThreshold <= 0 {
		c.Aggregation.MinFeedbackThreshold = 5
	}
	if c.Operations.UnitTimeout <= 0 {
		c.Operations.UnitTimeout = 5 * time.Minute
	}
	if c.Operations.UnitConcurrency <= 0 {
		c.Operations.UnitConcurrency = 1
	}
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("%w: missing database url", domain.ErrInvalidConfiguration)
	}
	for name, ov := range c.Extraction.Overrides {
		if ov.WindowSize <= 0 || ov.Stride <= 0 {
			return fmt.Errorf("%w: override %q needs positive window_size and stride", domain.ErrInvalidConfiguration, name)
		}
	}
	if err := c.Aggregation.Validate(); err != nil {
		return err
	}
	return nil
}

// WindowFor resolves the effective (window_size, stride) for one
// extractor, honoring per-extractor overrides.
func (c *Config) WindowFor(extractor string) (int, int) {
	return extraction.Resolve(extractor, c.Extraction.WindowSize, c.Extraction.Stride, c.Extraction.Overrides)
}
