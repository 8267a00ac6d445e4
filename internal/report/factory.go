package report

import (
	"context"
	"fmt"

	"flavorwise/internal/storage"
)

// New creates a report store on a shared storage connection. The caller
// keeps ownership of conn.
func New(ctx context.Context, conn storage.Storage) (Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("shared storage is required")
	}

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
