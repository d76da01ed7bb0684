package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
databaseUrl: postgres://localhost/offers
port: "9090"
cacheTTL: 30s
redis:
  addr: localhost:6379
  db: 2
rateLimitPerMinute: 120
artifactBaseUrl: https://offers.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := Default()
	want.DatabaseURL = "postgres://localhost/offers"
	want.Port = "9090"
	want.CacheTTL = 30 * time.Second
	want.Redis = RedisConfig{Addr: "localhost:6379", DB: 2}
	want.RateLimitPerMinute = 120
	want.ArtifactBaseURL = "https://offers.example.com"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeFile(t, "prot: 8080\n"))
	if err == nil {
		t.Fatal("Load() should reject unknown fields")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "port: \"9090\"\nlogLevel: DEBUG\n")

	t.Setenv("PORT", "7070")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want 7070", cfg.Port)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want DEBUG from file", cfg.LogLevel)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", cfg.CacheTTL)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 3 {
		t.Errorf("Redis = %+v, want addr redis:6379 db 3", cfg.Redis)
	}
}

func TestEnvParseErrors(t *testing.T) {
	testCases := []struct {
		key   string
		value string
	}{
		{"REDIS_DB", "two"},
		{"RATE_LIMIT_PER_MINUTE", "fast"},
		{"CACHE_TTL", "forever"},
		{"ERROR_SAMPLE_RATE", "1.5"},
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load("")
			if err == nil {
				t.Fatalf("Load() should fail for %s=%q", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Errorf("error should name %s, got %v", tc.key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"non-numeric port", func(c *Config) { c.Port = "http" }},
		{"port out of range", func(c *Config) { c.Port = "70000" }},
		{"negative TTL", func(c *Config) { c.CacheTTL = -time.Second }},
		{"zero rate limit", func(c *Config) { c.RateLimitPerMinute = 0 }},
		{"zero sample rate", func(c *Config) { c.ErrorSampleRate = 0 }},
		{"negative redis db", func(c *Config) { c.Redis.DB = -1 }},
		{"relative artifact URL", func(c *Config) { c.ArtifactBaseURL = "/offers" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should return error")
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}
