package pricetable

import (
	"context"
	"fmt"

	"flavorwise/internal/storage"
)

// New creates the Table for the given storage backend. The storage connection
// stays owned by the caller.
func New(ctx context.Context, store storage.Storage) (Table, error) {
	if store == nil {
		return NewMemoryTable(), nil
	}

	switch store.Type() {
	case storage.TypeMemory:
		return NewMemoryTable(), nil

	case storage.TypeSQLite:
		return NewSQLiteTable(store.SQLiteDB())

	case storage.TypePostgreSQL:
		pool := store.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		return NewPostgreSQLTable(ctx, pool)

	case storage.TypeMongoDB:
		db := store.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		return NewMongoDBTable(db)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
