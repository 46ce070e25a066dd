package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/introspecthq/agentlens-backend/internal/domain"
)

// clearConfigEnv blanks every variable Load reads so a test only sees
// what it sets itself.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AGENTLENS_CONFIG", "PORT", "APP_MODE", "DATABASE_URL",
		"REDIS_ADDR", "REDIS_CHANNEL",
		"PROVIDER_BASE_URL", "PROVIDER_API_KEY", "PROVIDER_TIMEOUT", "PROVIDER_MAX_RETRIES",
		"EXTRACTION_WINDOW_SIZE", "EXTRACTION_STRIDE",
		"AGGREGATION_REFRESH_COUNT", "AGGREGATION_MIN_FEEDBACK_THRESHOLD",
		"OPERATIONS_UNIT_TIMEOUT", "OPERATIONS_UNIT_CONCURRENCY",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/agentlens")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("port: want=8080 got=%q", cfg.Server.Port)
	}
	if cfg.Extraction.WindowSize != 50 || cfg.Extraction.Stride != 25 {
		t.Fatalf("window defaults: got=(%d,%d)", cfg.Extraction.WindowSize, cfg.Extraction.Stride)
	}
	if len(cfg.Extraction.Extractors) != 1 || cfg.Extraction.Extractors[0] != "profile" {
		t.Fatalf("extractor defaults: got=%v", cfg.Extraction.Extractors)
	}
	if cfg.Aggregation.RefreshCount != 10 || cfg.Aggregation.MinFeedbackThreshold != 5 {
		t.Fatalf("aggregation defaults: got=%+v", cfg.Aggregation)
	}
	if cfg.Operations.UnitTimeout != 5*time.Minute || cfg.Operations.UnitConcurrency != 1 {
		t.Fatalf("operation defaults: got=%+v", cfg.Operations)
	}
	if cfg.Provider.Timeout != 120*time.Second || cfg.Provider.MaxRetries != 3 {
		t.Fatalf("provider defaults: got=%+v", cfg.Provider)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/agentlens")
	t.Setenv("PORT", "9090")
	t.Setenv("APP_MODE", "production")
	t.Setenv("EXTRACTION_WINDOW_SIZE", "100")
	t.Setenv("EXTRACTION_STRIDE", "50")
	t.Setenv("AGGREGATION_REFRESH_COUNT", "4")
	t.Setenv("OPERATIONS_UNIT_TIMEOUT", "30s")
	t.Setenv("OPERATIONS_UNIT_CONCURRENCY", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.Mode != "production" {
		t.Fatalf("server: got=%+v", cfg.Server)
	}
	if cfg.Extraction.WindowSize != 100 || cfg.Extraction.Stride != 50 {
		t.Fatalf("extraction: got=(%d,%d)", cfg.Extraction.WindowSize, cfg.Extraction.Stride)
	}
	if cfg.Aggregation.RefreshCount != 4 {
		t.Fatalf("refresh count: want=4 got=%d", cfg.Aggregation.RefreshCount)
	}
	if cfg.Operations.UnitTimeout != 30*time.Second || cfg.Operations.UnitConcurrency != 3 {
		t.Fatalf("operations: got=%+v", cfg.Operations)
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  port: "7000"
database:
  url: postgres://localhost/agentlens
extraction:
  window_size: 80
  stride: 40
  overrides:
    preferences:
      window_size: 20
      stride: 10
aggregation:
  refresh_count: 7
  min_feedback_threshold: 3
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("AGENTLENS_CONFIG", path)
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Environment wins over the file.
	if cfg.Server.Port != "7100" {
		t.Fatalf("port: want=7100 got=%q", cfg.Server.Port)
	}
	if cfg.Extraction.WindowSize != 80 || cfg.Extraction.Stride != 40 {
		t.Fatalf("extraction from file: got=(%d,%d)", cfg.Extraction.WindowSize, cfg.Extraction.Stride)
	}
	if cfg.Aggregation.RefreshCount != 7 || cfg.Aggregation.MinFeedbackThreshold != 3 {
		t.Fatalf("aggregation from file: got=%+v", cfg.Aggregation)
	}

	size, stride := cfg.WindowFor("preferences")
	if size != 20 || stride != 10 {
		t.Fatalf("override window: want=(20,10) got=(%d,%d)", size, stride)
	}
	size, stride = cfg.WindowFor("profile")
	if size != 80 || stride != 40 {
		t.Fatalf("default window: want=(80,40) got=(%d,%d)", size, stride)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	if _, err := Load(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("want ErrInvalidConfiguration, got %v", err)
	}
}

func TestLoadRejectsBadOverride(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
database:
  url: postgres://localhost/agentlens
extraction:
  overrides:
    broken:
      window_size: 0
      stride: 10
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("AGENTLENS_CONFIG", path)

	if _, err := Load(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("want ErrInvalidConfiguration, got %v", err)
	}
}
