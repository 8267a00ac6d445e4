// Package config provides configuration management for the application.
//
// Configuration is read from a YAML file (config.yaml by default, or the path in
// FLAVORWISE_CONFIG) after loading an optional .env file. ${VAR} and
// ${VAR:-default} placeholders are expanded from the environment, and a small
// set of environment variables override the file for common deployment knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Cache       CacheConfig       `yaml:"cache"`
	Storage     StorageConfig     `yaml:"storage"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Billing     BillingConfig     `yaml:"billing"`
	Migration   MigrationConfig   `yaml:"migration"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Providers   ProvidersConfig   `yaml:"providers"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string `yaml:"port"`
	// APIKey, when set, is required as a bearer token on the /v1 routes.
	APIKey          string `yaml:"api_key"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
	BodySizeLimit   int64  `yaml:"body_size_limit"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Format is "auto" (tint on a terminal, JSON otherwise), "text" or "json".
	Format string `yaml:"format"`
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// HTTPConfig holds outbound HTTP client timeouts in seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// CacheConfig configures the memoization store for provider calls.
type CacheConfig struct {
	// Type is memory, file, redis, sqlite, postgresql or mongodb.
	// The last three reuse the storage section's connection settings.
	Type  string           `yaml:"type"`
	TTL   time.Duration    `yaml:"ttl"`
	File  string           `yaml:"file"`
	Redis RedisStoreConfig `yaml:"redis"`
}

// RedisStoreConfig holds Redis connection settings.
type RedisStoreConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// StorageConfig holds the database shared by the cache store, the price
// tables and the savings reports.
type StorageConfig struct {
	// Type is memory, sqlite, postgresql or mongodb.
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// PricingConfig sizes the worker pools and the price table freshness window.
type PricingConfig struct {
	PriceTableFreshness time.Duration `yaml:"price_table_freshness"`
	PricingWorkers      int           `yaml:"pricing_workers"`
	FlavorWorkers       int           `yaml:"flavor_workers"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
}

// BillingConfig points at the read-only billing store and resource catalog.
type BillingConfig struct {
	// Type is mongodb or memory.
	Type    string        `yaml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MigrationConfig tunes the savings engine.
type MigrationConfig struct {
	DaysThreshold  int    `yaml:"days_threshold"`
	DaysInMonth    int    `yaml:"days_in_month"`
	AccountWorkers int    `yaml:"account_workers"`
	Currency       string `yaml:"currency"`
}

// CredentialsConfig selects where provider credentials are read from.
type CredentialsConfig struct {
	// Type is file or redis.
	Type  string           `yaml:"type"`
	File  string           `yaml:"file"`
	Redis RedisStoreConfig `yaml:"redis"`
}

// ProvidersConfig holds per-cloud adapter settings.
type ProvidersConfig struct {
	// Enabled lists the cloud types to build adapters for. Empty means all.
	Enabled []string       `yaml:"enabled"`
	AWS     ProviderConfig `yaml:"aws"`
	Azure   ProviderConfig `yaml:"azure"`
	Alibaba ProviderConfig `yaml:"alibaba"`
	Nebius  NebiusConfig   `yaml:"nebius"`
	GCP     ProviderConfig `yaml:"gcp"`
}

// ProviderConfig holds settings common to every adapter.
type ProviderConfig struct {
	// CredentialsPath is the path handed to the credential source.
	CredentialsPath string `yaml:"credentials_path"`
	// BaseURL overrides the provider API endpoint (tests, proxies).
	BaseURL string `yaml:"base_url"`
	// RateLimit is the sustained outbound requests per second; Burst the bucket size.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// NebiusConfig adds the platforms and core fractions priced for Nebius targets.
type NebiusConfig struct {
	ProviderConfig `yaml:",inline"`
	Currency       string           `yaml:"currency"`
	Platforms      []NebiusPlatform `yaml:"platforms"`
	CoreFractions  []int            `yaml:"core_fractions"`
}

// NebiusPlatform maps a platform id to the name used in billing SKU names.
type NebiusPlatform struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DefaultBodySizeLimit is the default maximum request body size (1MB).
const DefaultBodySizeLimit int64 = 1 << 20

// buildDefaultConfig returns the configuration used when no file overrides a value.
func buildDefaultConfig() *Config {
	defaultProvider := func(path string, rate float64) ProviderConfig {
		return ProviderConfig{CredentialsPath: path, RateLimit: rate, Burst: int(rate) + 1}
	}
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			MetricsEnabled:  true,
			MetricsEndpoint: "/metrics",
			BodySizeLimit:   DefaultBodySizeLimit,
		},
		Log: LogConfig{
			Format: "auto",
			Level:  "info",
		},
		HTTP: HTTPConfig{
			Timeout:               120,
			ResponseHeaderTimeout: 60,
		},
		Cache: CacheConfig{
			Type: "sqlite",
			TTL:  12 * time.Hour,
			File: ".cache/flavorwise-cache.json",
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: ".cache/flavorwise.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "flavorwise"},
		},
		Pricing: PricingConfig{
			PriceTableFreshness: 60 * 24 * time.Hour,
			PricingWorkers:      50,
			FlavorWorkers:       5,
			CallTimeout:         60 * time.Second,
		},
		Billing: BillingConfig{
			Type:    "mongodb",
			MongoDB: MongoDBConfig{Database: "restapi"},
		},
		Migration: MigrationConfig{
			DaysThreshold:  30,
			DaysInMonth:    30,
			AccountWorkers: 4,
			Currency:       "USD",
		},
		Credentials: CredentialsConfig{
			Type: "file",
			File: "credentials.yaml",
		},
		Providers: ProvidersConfig{
			AWS:     defaultProvider("aws", 10),
			Azure:   defaultProvider("azure", 10),
			Alibaba: defaultProvider("alibaba", 10),
			GCP:     defaultProvider("gcp", 10),
			Nebius: NebiusConfig{
				ProviderConfig: defaultProvider("nebius", 5),
				Currency:       "USD",
				Platforms: []NebiusPlatform{
					{ID: "standard-v3", Name: "Intel Ice Lake"},
					{ID: "standard-v2", Name: "Intel Cascade Lake"},
				},
				CoreFractions: []int{100},
			},
		},
	}
}

// Load reads .env, the YAML config file and environment overrides.
func Load() (*Config, error) {
	// Optional .env file; a missing file is not an error.
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	path := os.Getenv("FLAVORWISE_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Defaults plus environment only.
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// Unset or empty variables without a default are left as-is.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides lets a few environment variables win over the file.
func applyEnvOverrides(cfg *Config) error {
	overrideString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overrideInt := func(key string, dst *int) error {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	overrideDuration := func(key string, dst *time.Duration) error {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	overrideString("PORT", &cfg.Server.Port)
	overrideString("FLAVORWISE_API_KEY", &cfg.Server.APIKey)
	overrideString("LOG_FORMAT", &cfg.Log.Format)
	overrideString("LOG_LEVEL", &cfg.Log.Level)
	overrideString("CACHE_TYPE", &cfg.Cache.Type)
	overrideString("REDIS_URL", &cfg.Cache.Redis.URL)
	overrideString("STORAGE_TYPE", &cfg.Storage.Type)
	overrideString("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	overrideString("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	overrideString("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	overrideString("BILLING_MONGODB_URL", &cfg.Billing.MongoDB.URL)
	overrideString("CREDENTIALS_FILE", &cfg.Credentials.File)

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED: %w", err)
		}
		cfg.Server.MetricsEnabled = b
	}

	for key, dst := range map[string]*int{
		"POSTGRES_MAX_CONNS":           &cfg.Storage.PostgreSQL.MaxConns,
		"PRICING_WORKERS":              &cfg.Pricing.PricingWorkers,
		"FLAVOR_WORKERS":               &cfg.Pricing.FlavorWorkers,
		"MIGRATION_DAYS_THRESHOLD":     &cfg.Migration.DaysThreshold,
		"HTTP_TIMEOUT":                 &cfg.HTTP.Timeout,
		"HTTP_RESPONSE_HEADER_TIMEOUT": &cfg.HTTP.ResponseHeaderTimeout,
	} {
		if err := overrideInt(key, dst); err != nil {
			return err
		}
	}

	for key, dst := range map[string]*time.Duration{
		"CACHE_TTL":             &cfg.Cache.TTL,
		"PRICE_TABLE_FRESHNESS": &cfg.Pricing.PriceTableFreshness,
		"PROVIDER_CALL_TIMEOUT": &cfg.Pricing.CallTimeout,
	} {
		if err := overrideDuration(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the application cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Type {
	case "memory", "file", "redis", "sqlite", "postgresql", "mongodb":
	default:
		errs = append(errs, fmt.Errorf("unknown cache type %q", c.Cache.Type))
	}
	if c.Cache.Type == "redis" && c.Cache.Redis.URL == "" {
		errs = append(errs, fmt.Errorf("cache.redis.url is required for redis cache"))
	}

	switch c.Storage.Type {
	case "memory", "sqlite", "postgresql", "mongodb":
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	switch c.Credentials.Type {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown credentials type %q", c.Credentials.Type))
	}

	switch c.Billing.Type {
	case "mongodb", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown billing type %q", c.Billing.Type))
	}

	if c.Pricing.PricingWorkers <= 0 || c.Pricing.FlavorWorkers <= 0 {
		errs = append(errs, fmt.Errorf("worker pool sizes must be positive"))
	}
	if c.Pricing.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pricing.call_timeout must be positive"))
	}
	if c.Migration.DaysThreshold <= 0 || c.Migration.DaysInMonth <= 0 {
		errs = append(errs, fmt.Errorf("migration day counts must be positive"))
	}
	if len(c.Providers.Nebius.CoreFractions) == 0 {
		errs = append(errs, fmt.Errorf("providers.nebius.core_fractions must not be empty"))
	}

	for _, name := range c.Providers.Enabled {
		switch strings.TrimSpace(name) {
		case "aws_cnr", "azure_cnr", "alibaba_cnr", "nebius", "gcp_cnr":
		default:
			errs = append(errs, fmt.Errorf("unknown provider %q in providers.enabled", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ProviderEnabled reports whether the given cloud type should get an adapter.
func (c *Config) ProviderEnabled(cloudType string) bool {
	if len(c.Providers.Enabled) == 0 {
		return true
	}
	for _, name := range c.Providers.Enabled {
		if strings.TrimSpace(name) == cloudType {
			return true
		}
	}
	return false
}
