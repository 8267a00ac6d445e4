package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type reportDocument struct {
	ID          string  `bson:"_id"`
	CreatedAt   int64   `bson:"created_at"`
	TotalSaving float64 `bson:"total_saving"`
	Data        []byte  `bson:"data"`
}

// MongoDBStore stores reports in MongoDB.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates the savings_reports indexes if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("savings_reports")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	index := mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("create savings_reports index: %w", err)
	}
	return &MongoDBStore{collection: coll}, nil
}

// Create inserts a new report.
func (s *MongoDBStore) Create(ctx context.Context, report *Report) error {
	payload, err := serializeReport(report)
	if err != nil {
		return err
	}

	doc := reportDocument{
		ID:          report.ID,
		CreatedAt:   report.CreatedAt,
		TotalSaving: report.TotalSaving,
		Data:        payload,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Get returns a report by id.
func (s *MongoDBStore) Get(ctx context.Context, id string) (*Report, error) {
	var doc reportDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	return deserializeReport(doc.Data)
}

// List returns reports ordered by created_at desc, id desc.
func (s *MongoDBStore) List(ctx context.Context, limit int, after string) ([]*Report, error) {
	limit = normalizeLimit(limit)
	filter := bson.M{}

	if after != "" {
		var cursorDoc reportDocument
		if err := s.collection.FindOne(ctx, bson.M{"_id": after}).Decode(&cursorDoc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}
		filter = bson.M{
			"$or": bson.A{
				bson.M{"created_at": bson.M{"$lt": cursorDoc.CreatedAt}},
				bson.M{"created_at": cursorDoc.CreatedAt, "_id": bson.M{"$lt": cursorDoc.ID}},
			},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*Report, 0, limit)
	for cursor.Next(ctx) {
		var doc reportDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode report document: %w", err)
		}
		r, err := deserializeReport(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("decode report payload: %w", err)
		}
		items = append(items, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports cursor: %w", err)
	}
	return items, nil
}

// Close is a no-op; Mongo client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
