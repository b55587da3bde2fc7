package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	CatalogSourceYAML     = "yaml"
	CatalogSourcePostgres = "postgres"
)

// Config holds service settings.
type Config struct {
	HTTPAddr             string        `yaml:"http_addr"`
	DatabaseURL          string        `yaml:"database_url"`
	CatalogSource        string        `yaml:"catalog_source"`
	CatalogFile          string        `yaml:"catalog_file"`
	SessionSecret        string        `yaml:"session_secret"`
	SessionTokenTTL      time.Duration `yaml:"session_token_ttl"`
	SessionIdleTTL       time.Duration `yaml:"session_idle_ttl"`
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`
	LogLevel             string        `yaml:"log_level"`
}

// Load reads .env (when present), the environment, and an optional YAML
// file named by CONFIG_FILE. Values in the YAML file win over the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a config from environment variables and defaults.
func FromEnv() Config {
	return Config{
		HTTPAddr:             getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:          getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		CatalogSource:        getenvDefault("CATALOG_SOURCE", CatalogSourceYAML),
		CatalogFile:          getenvDefault("CATALOG_FILE", "config/catalog.example.yaml"),
		SessionSecret:        getenvDefault("SESSION_SECRET", ""),
		SessionTokenTTL:      getenvDuration("SESSION_TOKEN_TTL", 8*time.Hour),
		SessionIdleTTL:       getenvDuration("SESSION_IDLE_TTL", 2*time.Hour),
		SessionSweepInterval: getenvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		LogLevel:             getenvDefault("LOG_LEVEL", "info"),
	}
}

// Overlay applies the non-empty fields of a YAML file.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	overlayString(&c.HTTPAddr, file.HTTPAddr)
	overlayString(&c.DatabaseURL, file.DatabaseURL)
	overlayString(&c.CatalogSource, file.CatalogSource)
	overlayString(&c.CatalogFile, file.CatalogFile)
	overlayString(&c.SessionSecret, file.SessionSecret)
	overlayString(&c.LogLevel, file.LogLevel)
	overlayDuration(&c.SessionTokenTTL, file.SessionTokenTTL)
	overlayDuration(&c.SessionIdleTTL, file.SessionIdleTTL)
	overlayDuration(&c.SessionSweepInterval, file.SessionSweepInterval)
	return nil
}

// Validate checks that the selected sources are usable.
func (c Config) Validate() error {
	switch c.CatalogSource {
	case CatalogSourceYAML:
		if c.CatalogFile == "" {
			return errors.New("config: CATALOG_FILE is required for yaml catalogs")
		}
	case CatalogSourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL or PG_DSN is required for postgres catalogs")
		}
	default:
		return fmt.Errorf("config: unknown CATALOG_SOURCE %q", c.CatalogSource)
	}
	if c.SessionIdleTTL <= 0 || c.SessionSweepInterval <= 0 {
		return errors.New("config: session durations must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logger builds the JSON logger used across the service.
func (c Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func overlayString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func overlayDuration(dst *time.Duration, value time.Duration) {
	if value > 0 {
		*dst = value
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		if seconds, convErr := strconv.Atoi(value); convErr == nil {
			return time.Duration(seconds) * time.Second
		}
		return fallback
	}
	return parsed
}
