// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the flavorwise server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"flavorwise/config"
	"flavorwise/internal/cache"
	"flavorwise/internal/credentials"
	"flavorwise/internal/httpclient"
	"flavorwise/internal/migration"
	"flavorwise/internal/pricetable"
	"flavorwise/internal/providers"
	"flavorwise/internal/report"
	"flavorwise/internal/resolver"
	"flavorwise/internal/server"
	"flavorwise/internal/storage"
	"flavorwise/internal/usage"
	"flavorwise/internal/workerpool"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config      *config.Config
	storage     storage.Storage
	cache       *cache.Result
	table       pricetable.Table
	credentials credentials.Source
	registry    *providers.Registry
	pricingPool *workerpool.Pool
	flavorPool  *workerpool.Pool
	resolver    *resolver.Resolver
	billing     *usage.Result
	engine      *migration.Engine
	reports     report.Store
	savings     *report.Recorder
	server      *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}

	app := &App{config: cfg}
	if err := app.init(ctx); err != nil {
		if closeErr := app.release(); closeErr != nil {
			return nil, fmt.Errorf("%w (also: close error: %v)", err, closeErr)
		}
		return nil, err
	}

	app.logStartupInfo()
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.config

	// Price tables and the cache share one connection when their types match.
	store, err := storage.New(ctx, cache.BuildStorageConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.storage = store

	a.cache, err = cache.NewWithSharedStorage(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	a.table, err = pricetable.New(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to initialize price tables: %w", err)
	}

	a.credentials, err = credentials.New(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to initialize credentials source: %w", err)
	}

	httpCfg := httpclient.ConfigFromSeconds(cfg.HTTP.Timeout, cfg.HTTP.ResponseHeaderTimeout)
	a.registry, err = providers.Build(ctx, cfg, providers.Deps{
		Credentials: a.credentials,
		Table:       a.table,
		HTTPClient:  httpclient.NewHTTPClient(&httpCfg),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	a.pricingPool = workerpool.New("pricing", cfg.Pricing.PricingWorkers)
	a.flavorPool = workerpool.New("flavors", cfg.Pricing.FlavorWorkers)
	pricing := workerpool.NewCaller(a.pricingPool, a.cache.Cache, cfg.Pricing.CallTimeout)
	flavors := workerpool.NewCaller(a.flavorPool, a.cache.Cache, cfg.Pricing.CallTimeout)
	a.resolver = resolver.New(a.registry, pricing, flavors)

	a.billing, err = usage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize billing store: %w", err)
	}

	a.reports, err = report.New(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to initialize report store: %w", err)
	}

	// Without a Nebius adapter there is no migration target.
	var recommender server.Recommender
	if target, err := a.registry.Nebius(); err != nil {
		slog.Warn("migration savings disabled", "reason", err)
	} else {
		a.engine = migration.New(a.billing.Normalizer(), a.resolver, target, pricing, migration.Options{
			DaysThreshold:  cfg.Migration.DaysThreshold,
			DaysInMonth:    cfg.Migration.DaysInMonth,
			AccountWorkers: cfg.Migration.AccountWorkers,
			Currency:       cfg.Migration.Currency,
		})
		a.savings = report.NewRecorder(a.engine, a.reports)
		recommender = a.savings
	}

	a.server = server.New(server.NewHandler(a.resolver, recommender, a.registry, a.reports), &server.Config{
		APIKey:          cfg.Server.APIKey,
		MetricsEnabled:  cfg.Server.MetricsEnabled,
		MetricsEndpoint: cfg.Server.MetricsEndpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})
	return nil
}

// Resolver returns the flavor resolver.
func (a *App) Resolver() *resolver.Resolver {
	return a.resolver
}

// Savings returns the engine wrapped so every run is saved as a report,
// or nil when no Nebius adapter is configured.
func (a *App) Savings() *report.Recorder {
	return a.savings
}

// Reports returns the savings report store.
func (a *App) Reports() report.Store {
	return a.reports
}

// Registry returns the provider adapters.
func (a *App) Registry() *providers.Registry {
	return a.registry
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, then the worker pools (in-flight lookups finish),
// then the stores.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every close step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// release closes every initialized component except the HTTP server.
func (a *App) release() error {
	var errs []error
	closeStep := func(name string, fn func() error) {
		if err := fn(); err != nil {
			slog.Error(name+" close error", "error", err)
			errs = append(errs, fmt.Errorf("%s close: %w", name, err))
		}
	}

	if a.pricingPool != nil {
		a.pricingPool.Close()
	}
	if a.flavorPool != nil {
		a.flavorPool.Close()
	}
	if a.billing != nil {
		closeStep("billing", a.billing.Close)
	}
	if a.reports != nil {
		closeStep("reports", a.reports.Close)
	}
	if a.credentials != nil {
		closeStep("credentials", a.credentials.Close)
	}
	if a.table != nil {
		closeStep("price table", a.table.Close)
	}
	if a.cache != nil {
		closeStep("cache", a.cache.Close)
	}
	if a.storage != nil {
		closeStep("storage", a.storage.Close)
	}

	return errors.Join(errs...)
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.APIKey == "" {
		slog.Warn("FLAVORWISE_API_KEY not set - API routes accept unauthenticated requests")
	} else {
		slog.Info("authentication enabled", "mode", "api_key")
	}

	if cfg.Server.MetricsEnabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Server.MetricsEndpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type, "cache", cfg.Cache.Type, "cache_ttl", cfg.Cache.TTL)
	slog.Info("providers configured", "clouds", a.registry.Clouds())
	slog.Info("worker pools configured",
		"pricing_workers", cfg.Pricing.PricingWorkers,
		"flavor_workers", cfg.Pricing.FlavorWorkers,
		"call_timeout", cfg.Pricing.CallTimeout,
	)
	slog.Info("billing store configured", "type", cfg.Billing.Type, "migration_enabled", a.engine != nil)
}
