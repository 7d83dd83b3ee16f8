package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config struct to hold the configuration settings
type Config struct {
	Ledger        LedgerConfig        `yaml:"ledger"`
	Database      DatabaseConfig      `yaml:"database"`
	NATS          NATSConfig          `yaml:"nats"`
	HTTP          HTTPConfig          `yaml:"http"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LedgerConfig identifies the ledger instance. The ID is mixed into every
// record address and is the audience of caller tokens.
type LedgerConfig struct {
	ID string `yaml:"id" env:"LEDGER_ID"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN          string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
}

// NATSConfig holds NATS configuration. An empty URL selects the in-process bus.
type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	DurablePrefix string `yaml:"durable_prefix" env:"NATS_DURABLE_PREFIX"`
}

// HTTPConfig holds the HTTP API configuration.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
	RateLimit       float64       `yaml:"rate_limit" env:"HTTP_RATE_LIMIT"`
	RateBurst       int           `yaml:"rate_burst" env:"HTTP_RATE_BURST"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" env:"HTTP_TRUST_PROXY_HEADERS"`
}

// AuthConfig holds caller token settings.
type AuthConfig struct {
	MaxTokenTTL time.Duration `yaml:"max_token_ttl" env:"AUTH_MAX_TOKEN_TTL"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	Environment  string `yaml:"environment" env:"ENV"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
}

// Defaults returns a config with every optional field populated.
func Defaults() Config {
	return Config{
		Ledger:   LedgerConfig{ID: "default"},
		Database: DatabaseConfig{Driver: DriverPostgres, MaxOpenConns: 10},
		NATS:     NATSConfig{DurablePrefix: "highscore"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{MaxTokenTTL: 5 * time.Minute},
		Observability: ObservabilityConfig{
			ServiceName: "highscore-ledger",
			Environment: "production",
			LogLevel:    "info",
		},
	}
}

// LoadConfig loads the configuration from a YAML file, then applies
// environment overrides. A missing file falls back to environment only.
func LoadConfig(filename string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.ID == "" {
		errs = append(errs, errors.New("ledger.id must not be empty"))
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn (DATABASE_URL) must be set"))
	}
	if c.Auth.MaxTokenTTL <= 0 {
		errs = append(errs, errors.New("auth.max_token_ttl must be positive"))
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		errs = append(errs, errors.New("http rate limits must not be negative"))
	}
	return errors.Join(errs...)
}
