package cache

import (
	"context"
	"errors"
	"fmt"

	"flavorwise/config"
	"flavorwise/internal/storage"
)

// Result holds the initialized cache and the storage it owns, if any.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Cache   *Cache
	Storage storage.Storage
}

// Close releases all resources held by the cache.
// Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
		r.Cache = nil
	}
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

// New creates the cache selected by cfg.Cache.Type. The SQL and MongoDB
// backends get a dedicated connection built from the storage section.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	switch cfg.Cache.Type {
	case "", storage.TypeMemory:
		return &Result{Cache: NewCache(NewMemoryStore(), cfg.Cache.TTL)}, nil

	case "file":
		store, err := NewLocalStore(cfg.Cache.File)
		if err != nil {
			return nil, err
		}
		return &Result{Cache: NewCache(store, cfg.Cache.TTL)}, nil

	case "redis":
		store, err := NewRedisStore(RedisConfig{URL: cfg.Cache.Redis.URL, Prefix: cfg.Cache.Redis.Prefix})
		if err != nil {
			return nil, err
		}
		return &Result{Cache: NewCache(store, cfg.Cache.TTL)}, nil
	}

	storageCfg := BuildStorageConfig(cfg)
	storageCfg.Type = cfg.Cache.Type

	conn, err := storage.New(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache storage: %w", err)
	}

	store, err := createStore(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Result{Cache: NewCache(store, cfg.Cache.TTL), Storage: conn}, nil
}

// NewWithSharedStorage creates the cache on an existing connection when the
// cache type matches the storage type, and falls back to New otherwise.
// The caller is responsible for closing the shared storage separately.
func NewWithSharedStorage(ctx context.Context, cfg *config.Config, shared storage.Storage) (*Result, error) {
	if shared == nil || shared.Type() != cfg.Cache.Type {
		return New(ctx, cfg)
	}
	store, err := createStore(ctx, shared)
	if err != nil {
		return nil, err
	}
	return &Result{Cache: NewCache(store, cfg.Cache.TTL)}, nil
}

// BuildStorageConfig creates a storage.Config from the application config.
func BuildStorageConfig(cfg *config.Config) storage.Config {
	storageCfg := storage.Config{
		Type: cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}

	defaults := storage.DefaultConfig()
	if storageCfg.Type == "" {
		storageCfg.Type = defaults.Type
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = defaults.SQLite.Path
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = defaults.MongoDB.Database
	}
	return storageCfg
}

// createStore creates the Store for the given storage backend.
func createStore(ctx context.Context, conn storage.Storage) (Store, error) {
	switch conn.Type() {
	case storage.TypeMemory:
		return NewMemoryStore(), nil

	case storage.TypeSQLite:
		return NewSQLiteStore(conn.SQLiteDB())

	case storage.TypePostgreSQL:
		pool := conn.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		return NewPostgreSQLStore(ctx, pool)

	case storage.TypeMongoDB:
		db := conn.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		return NewMongoDBStore(db)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", conn.Type())
	}
}
