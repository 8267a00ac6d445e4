package pricetable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBTable implements Table for MongoDB.
type MongoDBTable struct {
	collection *mongo.Collection
}

// NewMongoDBTable creates the price_rows collection indexes.
func NewMongoDBTable(database *mongo.Database) (*MongoDBTable, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection("price_rows")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "sku", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "region", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "flavor", Value: 1}},
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		slog.Warn("failed to create price_rows indexes", "error", err)
	}

	return &MongoDBTable{collection: collection}, nil
}

// Find returns rows matching f.
func (t *MongoDBTable) Find(ctx context.Context, f Filter) ([]Row, error) {
	filter := bson.D{{Key: "provider", Value: f.Provider}}
	if f.Region != "" {
		filter = append(filter, bson.E{Key: "region", Value: f.Region})
	}
	if f.FlavorID != "" {
		filter = append(filter, bson.E{Key: "flavor", Value: f.FlavorID})
	}
	if !f.Since.IsZero() {
		filter = append(filter, bson.E{Key: "updated_at", Value: bson.D{{Key: "$gte", Value: f.Since.UTC()}}})
	}
	for k, v := range f.Attributes {
		filter = append(filter, bson.E{Key: "attributes." + k, Value: v})
	}

	cursor, err := t.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "sku", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query price rows: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Row
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode price rows: %w", err)
	}
	return out, nil
}

// Upsert replaces rows by (provider, sku) in one unordered bulk write.
func (t *MongoDBTable) Upsert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		r.UpdatedAt = r.UpdatedAt.UTC()
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "provider", Value: r.Provider}, {Key: "sku", Value: r.SKU}}).
			SetReplacement(r).
			SetUpsert(true))
	}

	if _, err := t.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert %d price rows: %w", len(rows), err)
	}
	return nil
}

// Close is a no-op; the client is owned by the storage layer.
func (t *MongoDBTable) Close() error {
	return nil
}
