package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBStore implements Store for MongoDB. The entry id is the document _id.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates the function index on the cache_entries collection.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection("cache_entries")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "function", Value: 1}}},
	})
	if err != nil {
		slog.Warn("failed to create cache_entries indexes", "error", err)
	}

	return &MongoDBStore{collection: collection}, nil
}

// Get returns the entry for key.
func (s *MongoDBStore) Get(ctx context.Context, key CallKey) (*Entry, error) {
	var entry Entry
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key.ID()}}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &entry, nil
}

// Put upserts the entry for key.
func (s *MongoDBStore) Put(ctx context.Context, key CallKey, result []byte) error {
	e := newEntry(key, result, time.Now())
	_, err := s.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: e.ID}},
		e,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
