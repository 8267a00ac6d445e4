//go:build integration

package usage

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"flavorwise/internal/core"
	"flavorwise/internal/storage/storagetest"
)

var containers *storagetest.Containers

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)

	var err error
	containers, err = storagetest.Start(ctx)
	if err != nil {
		log.Printf("Container setup failed: %v", err)
		cancel()
		os.Exit(1)
	}

	code := m.Run()

	containers.Terminate(context.Background())
	cancel()
	os.Exit(code)
}

func TestMongoDB_NormalizeAWS(t *testing.T) {
	ctx := context.Background()
	db := containers.Mongo.MongoDatabase()

	_, err := db.Collection("resources").InsertMany(ctx, []any{
		bson.M{"_id": "r1", "cloud_account_id": "acc", "cloud_resource_id": "i-1", "resource_type": CatalogInstance, "region": "us-east-1", "flavor": "t3.large", "last_seen": day0},
		bson.M{"_id": "r2", "cloud_account_id": "acc", "cloud_resource_id": "i-2", "resource_type": CatalogInstance, "region": "us-east-1", "flavor": "t3.large", "last_seen": day0.AddDate(0, -2, 0)},
	})
	require.NoError(t, err)
	_, err = db.Collection("raw_expenses").InsertMany(ctx, []any{
		bson.M{"cloud_account_id": "acc", "resource_id": "i-1", "start_date": day0, "lineItem/UsageType": "USE1-BoxUsage:t3.large", "product/productFamily": "Compute Instance", "product/region": "us-east-1", "product/instanceType": "t3.large", "lineItem/UsageAmount": 4.0},
		bson.M{"cloud_account_id": "acc", "resource_id": "i-1", "start_date": day0, "lineItem/UsageType": "USE1-EBS:VolumeUsage", "product/productFamily": "Storage", "product/region": "us-east-1", "lineItem/UsageAmount": 50.0},
		bson.M{"cloud_account_id": "acc", "resource_id": "i-2", "start_date": day0, "lineItem/UsageType": "USE1-BoxUsage:t3.large", "product/productFamily": "Compute Instance", "product/region": "us-east-1", "product/instanceType": "t3.large", "lineItem/UsageAmount": 7.0},
	})
	require.NoError(t, err)

	billing, err := NewMongoDBBilling(db)
	require.NoError(t, err)
	catalog, err := NewMongoDBCatalog(db)
	require.NoError(t, err)

	got, err := NewNormalizer(billing, catalog).Usage(ctx, core.CloudAccount{ID: "acc", Type: core.CloudAWS}, day0.AddDate(0, 0, -10))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t3.large", got[0].FlavorID)
	assert.InDelta(t, 4.0, got[0].Usage, 1e-9)
}
