package usage

import (
	"context"
	"errors"
	"fmt"

	"flavorwise/config"
	"flavorwise/internal/storage"
)

// Result holds the billing reader, the resource catalog and the connection
// backing them. The caller must call Close during shutdown.
type Result struct {
	Billing BillingReader
	Catalog ResourceCatalog
	Storage storage.Storage
}

// Normalizer returns a Normalizer over the result's readers.
func (r *Result) Normalizer() *Normalizer {
	return NewNormalizer(r.Billing, r.Catalog)
}

// Close releases the billing store connection. Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New connects to the billing store selected by cfg.Billing.Type. The memory
// type starts empty.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	switch cfg.Billing.Type {
	case "memory", "":
		return &Result{Billing: NewMemoryBilling(), Catalog: NewMemoryCatalog()}, nil

	case "mongodb":
		store, err := storage.NewMongoDB(ctx, storage.MongoDBConfig{
			URL:      cfg.Billing.MongoDB.URL,
			Database: cfg.Billing.MongoDB.Database,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to billing store: %w", err)
		}
		db := store.MongoDatabase()
		billing, err := NewMongoDBBilling(db)
		if err != nil {
			store.Close()
			return nil, err
		}
		catalog, err := NewMongoDBCatalog(db)
		if err != nil {
			store.Close()
			return nil, err
		}
		return &Result{Billing: billing, Catalog: catalog, Storage: store}, nil

	default:
		return nil, fmt.Errorf("unknown billing type: %s", cfg.Billing.Type)
	}
}
