package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	t.Setenv("FW_SCHEME", "https")
	t.Setenv("FW_HOST", "prices.azure.com")
	t.Setenv("FW_EMPTY", "")

	tests := []struct {
		input, want string
	}{
		{"", ""},
		{"standard-v3", "standard-v3"},
		{"${FW_SCHEME}://${FW_HOST}/api/retail/prices", "https://prices.azure.com/api/retail/prices"},
		{"${FW_HOST:-localhost}", "prices.azure.com"},
		{"${FW_UNSET:-/etc/flavorwise/credentials.yaml}", "/etc/flavorwise/credentials.yaml"},
		{"${FW_EMPTY:-fallback}", "fallback"},
		{"${FW_UNSET:-}", ""},
		{"${FW_UNSET}", "${FW_UNSET}"},
		{"$FW_HOST", "$FW_HOST"},
		{"${FW_HOST", "${FW_HOST"},
	}
	for _, tt := range tests {
		if got := expandString(tt.input); got != tt.want {
			t.Errorf("expandString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// TestApplyEnvOverrides tests the applyEnvOverrides function
func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "3000" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "3000")
				}
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Type != "postgresql" {
					t.Errorf("Storage.Type = %q, want %q", cfg.Storage.Type, "postgresql")
				}
				if cfg.Storage.PostgreSQL.URL != "postgres://localhost/test" {
					t.Errorf("Storage.PostgreSQL.URL = %q, want %q", cfg.Storage.PostgreSQL.URL, "postgres://localhost/test")
				}
				if cfg.Storage.PostgreSQL.MaxConns != 20 {
					t.Errorf("Storage.PostgreSQL.MaxConns = %d, want %d", cfg.Storage.PostgreSQL.MaxConns, 20)
				}
			},
		},
		{
			name:    "cache overrides",
			envVars: map[string]string{"CACHE_TYPE": "redis", "REDIS_URL": "redis://localhost:6379", "CACHE_TTL": "30m"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Cache.Type != "redis" {
					t.Errorf("Cache.Type = %q, want redis", cfg.Cache.Type)
				}
				if cfg.Cache.Redis.URL != "redis://localhost:6379" {
					t.Errorf("Cache.Redis.URL = %q", cfg.Cache.Redis.URL)
				}
				if cfg.Cache.TTL != 30*time.Minute {
					t.Errorf("Cache.TTL = %v, want 30m", cfg.Cache.TTL)
				}
			},
		},
		{
			name:    "pool sizes",
			envVars: map[string]string{"PRICING_WORKERS": "8", "FLAVOR_WORKERS": "2", "PROVIDER_CALL_TIMEOUT": "5s"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Pricing.PricingWorkers != 8 || cfg.Pricing.FlavorWorkers != 2 {
					t.Errorf("workers = %d/%d, want 8/2", cfg.Pricing.PricingWorkers, cfg.Pricing.FlavorWorkers)
				}
				if cfg.Pricing.CallTimeout != 5*time.Second {
					t.Errorf("CallTimeout = %v, want 5s", cfg.Pricing.CallTimeout)
				}
			},
		},
		{
			name:    "bool override",
			envVars: map[string]string{"METRICS_ENABLED": "false"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.MetricsEnabled {
					t.Error("Server.MetricsEnabled should be false")
				}
			},
		},
		{
			name:    "no env vars set preserves defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "8080" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
				}
				if cfg.Pricing.PricingWorkers != 50 || cfg.Pricing.FlavorWorkers != 5 {
					t.Errorf("workers = %d/%d, want 50/5", cfg.Pricing.PricingWorkers, cfg.Pricing.FlavorWorkers)
				}
				if cfg.Cache.TTL != 12*time.Hour {
					t.Errorf("Cache.TTL = %v, want 12h", cfg.Cache.TTL)
				}
				if cfg.Pricing.PriceTableFreshness != 60*24*time.Hour {
					t.Errorf("PriceTableFreshness = %v, want 60 days", cfg.Pricing.PriceTableFreshness)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	t.Setenv("PRICING_WORKERS", "many")
	require.Error(t, applyEnvOverrides(buildDefaultConfig()))
}
