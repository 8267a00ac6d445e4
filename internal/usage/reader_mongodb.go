package usage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBBilling implements BillingReader over the raw_expenses collection.
type MongoDBBilling struct {
	collection *mongo.Collection
}

// NewMongoDBBilling creates a MongoDB billing reader.
func NewMongoDBBilling(database *mongo.Database) (*MongoDBBilling, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBBilling{collection: database.Collection("raw_expenses")}, nil
}

// scopeFilter builds the account, time and resource part of a $match.
func scopeFilter(scope Scope) bson.D {
	filter := bson.D{{Key: "cloud_account_id", Value: scope.CloudAccountID}}
	if !scope.Since.IsZero() {
		filter = append(filter, bson.E{Key: "start_date", Value: bson.D{{Key: "$gte", Value: scope.Since.UTC()}}})
	}

	var or bson.A
	if len(scope.ResourceIDs) > 0 {
		or = append(or, bson.D{{Key: "resource_id", Value: bson.D{{Key: "$in", Value: scope.ResourceIDs}}}})
	}
	if len(scope.ResourceHashes) > 0 {
		or = append(or, bson.D{{Key: "resource_hash", Value: bson.D{{Key: "$in", Value: scope.ResourceHashes}}}})
	}
	if len(or) > 0 {
		filter = append(filter, bson.E{Key: "$or", Value: or})
	}
	return filter
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.D, projection bson.D, what string) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	for cursor.Next(ctx) {
		var row T
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", what, err)
		}
		out = append(out, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s cursor: %w", what, err)
	}
	return out, nil
}

func projection(fields ...string) bson.D {
	p := bson.D{{Key: "_id", Value: 0}}
	for _, f := range fields {
		p = append(p, bson.E{Key: f, Value: 1})
	}
	return p
}

func (r *MongoDBBilling) AWSBoxUsage(ctx context.Context, scope Scope) ([]AWSBoxUsageRow, error) {
	filter := append(scopeFilter(scope),
		bson.E{Key: "lineItem/UsageType", Value: bson.D{{Key: "$regex", Value: "BoxUsage"}}},
		bson.E{Key: "product/productFamily", Value: bson.D{{Key: "$in", Value: awsComputeFamilies}}},
	)
	return findAll[AWSBoxUsageRow](ctx, r.collection, filter,
		projection("cloud_account_id", "resource_id", "start_date",
			"product/productFamily", "product/region", "product/instanceType", "lineItem/UsageAmount"),
		"aws box usage")
}

func (r *MongoDBBilling) AzureUsage(ctx context.Context, scope Scope) ([]AzureUsageRow, error) {
	return findAll[AzureUsageRow](ctx, r.collection, scopeFilter(scope),
		projection("cloud_account_id", "resource_id", "start_date", "usage_quantity"),
		"azure usage")
}

func (r *MongoDBBilling) AlibabaUsage(ctx context.Context, scope Scope) ([]AlibabaUsageRow, error) {
	filter := append(scopeFilter(scope),
		bson.E{Key: "InstanceSpec", Value: bson.D{{Key: "$exists", Value: true}}},
	)
	return findAll[AlibabaUsageRow](ctx, r.collection, filter,
		projection("cloud_account_id", "resource_id", "start_date", "Region", "InstanceSpec", "Usage"),
		"alibaba usage")
}

func (r *MongoDBBilling) GCPUsage(ctx context.Context, scope Scope) ([]GCPUsageRow, error) {
	filter := append(scopeFilter(scope),
		bson.E{Key: "sku_description", Value: bson.D{{Key: "$regex", Value: "Core running in"}}},
	)
	return findAll[GCPUsageRow](ctx, r.collection, filter,
		projection("cloud_account_id", "resource_hash", "start_date", "sku_description",
			"region", "system_tags.machine_spec", "usage_amount_in_pricing_units"),
		"gcp usage")
}

// MongoDBCatalog implements ResourceCatalog over the resources collection.
type MongoDBCatalog struct {
	collection *mongo.Collection
}

// NewMongoDBCatalog creates a MongoDB resource catalog.
func NewMongoDBCatalog(database *mongo.Database) (*MongoDBCatalog, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBCatalog{collection: database.Collection("resources")}, nil
}

func (c *MongoDBCatalog) ActiveComputeResources(ctx context.Context, accountID string, since time.Time) ([]Resource, error) {
	filter := bson.D{
		{Key: "cloud_account_id", Value: accountID},
		{Key: "resource_type", Value: bson.D{{Key: "$in", Value: bson.A{CatalogInstance, CatalogRDSInstance}}}},
		{Key: "last_seen", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
	}
	cursor, err := c.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Resource
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}
	return out, nil
}
