// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server and tooling configuration
type Config struct {
	DatabaseURL    string `yaml:"databaseUrl"`
	Port           string `yaml:"port"`
	MigrationsPath string `yaml:"migrationsPath"`

	LogLevel        string `yaml:"logLevel"`
	ErrorSampleRate int    `yaml:"errorSampleRate"`

	Redis    RedisConfig   `yaml:"redis"`
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// RateLimitPerMinute bounds requests per client IP on the API
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`

	// ArtifactBaseURL is used to build a fired rule's URL when its
	// recommendation has none
	ArtifactBaseURL string `yaml:"artifactBaseUrl"`
}

// RedisConfig selects the shared snapshot cache. Addr empty means in-memory caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Port:               "8080",
		MigrationsPath:     "migrations",
		LogLevel:           "INFO",
		ErrorSampleRate:    1,
		RateLimitPerMinute: 600,
		ArtifactBaseURL:    "http://localhost:8080",
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides, then validates it
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file keeps the defaults
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	c.DatabaseURL = ParseString("DATABASE_URL", c.DatabaseURL)
	c.Port = ParseString("PORT", c.Port)
	c.MigrationsPath = ParseString("MIGRATIONS_PATH", c.MigrationsPath)
	c.LogLevel = ParseString("LOG_LEVEL", c.LogLevel)
	c.Redis.Addr = ParseString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = ParseString("REDIS_PASSWORD", c.Redis.Password)
	c.ArtifactBaseURL = ParseString("ARTIFACT_BASE_URL", c.ArtifactBaseURL)

	var err error
	if c.ErrorSampleRate, err = ParseInt("ERROR_SAMPLE_RATE", c.ErrorSampleRate); err != nil {
		return err
	}
	if c.Redis.DB, err = ParseInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.RateLimitPerMinute, err = ParseInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute); err != nil {
		return err
	}
	if c.CacheTTL, err = ParseDuration("CACHE_TTL", c.CacheTTL); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the server cannot run with
func (c Config) Validate() error {
	var problems []string

	if c.Port == "" {
		problems = append(problems, "port is required")
	} else if n, err := strconv.Atoi(c.Port); err != nil || n < 1 || n > 65535 {
		problems = append(problems, fmt.Sprintf("port %q must be a number between 1 and 65535", c.Port))
	}
	if c.CacheTTL < 0 {
		problems = append(problems, "cacheTTL must not be negative")
	}
	if c.RateLimitPerMinute <= 0 {
		problems = append(problems, "rateLimitPerMinute must be positive")
	}
	if c.ErrorSampleRate <= 0 {
		problems = append(problems, "errorSampleRate must be positive")
	}
	if c.Redis.DB < 0 {
		problems = append(problems, "redis db must not be negative")
	}
	if u, err := url.Parse(c.ArtifactBaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		problems = append(problems, fmt.Sprintf("artifactBaseUrl %q must be an absolute URL", c.ArtifactBaseURL))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseString reads a string from the environment or returns defaultValue.
// An empty variable counts as unset.
func ParseString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from the environment or returns defaultValue
func ParseInt(key string, defaultValue int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return i, nil
}

// ParseDuration reads a Go duration from the environment or returns defaultValue
func ParseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
