package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/config"
	"flavorwise/internal/core"
)

func TestNormalizer_Usage(t *testing.T) {
	ctx := context.Background()
	since := day0.Add(-10 * 24 * time.Hour)

	billing := NewMemoryBilling()
	billing.AddAWS(awsRows()...)
	billing.AddAzure(AzureUsageRow{CloudAccountID: "az", ResourceID: "vm-a", StartDate: day0, UsageQuantity: 3})
	billing.AddGCP(
		gcpRow("h1", "n2-standard-4", "us-central1", 16),
		func() GCPUsageRow {
			r := gcpRow("h1", "n2-standard-4", "us-central1", 64)
			r.SKUDescription = "N2 Instance Ram running in Americas"
			return r
		}(),
	)

	catalog := NewMemoryCatalog(
		Resource{ID: "r1", CloudAccountID: "acc", CloudResourceID: "i-1", ResourceType: CatalogInstance, LastSeen: day0},
		Resource{ID: "r2", CloudAccountID: "acc", CloudResourceID: "db-1", ResourceType: CatalogRDSInstance, LastSeen: day0},
		// Stale and non-compute resources are out of scope.
		Resource{ID: "r3", CloudAccountID: "acc", CloudResourceID: "i-2", ResourceType: CatalogInstance, LastSeen: since.Add(-time.Hour)},
		Resource{ID: "r4", CloudAccountID: "acc", CloudResourceID: "bucket", ResourceType: "Bucket", LastSeen: day0},
		Resource{ID: "r5", CloudAccountID: "az", CloudResourceID: "vm-a", ResourceType: CatalogInstance, Region: "westeurope", Flavor: "Standard_D2s_v3", LastSeen: day0},
		Resource{ID: "r6", CloudAccountID: "g", CloudResourceHash: "h1", ResourceType: CatalogInstance, LastSeen: day0},
	)
	n := NewNormalizer(billing, catalog)

	t.Run("AWS", func(t *testing.T) {
		got, err := n.Usage(ctx, core.CloudAccount{ID: "acc", Type: core.CloudAWS}, since)
		require.NoError(t, err)
		assert.Equal(t, []core.UsageRecord{
			{CloudAccountID: "acc", ResourceType: core.ResourceRDSInstance, Region: "us-east-1", FlavorID: "db.m5.large", Usage: 12},
			{CloudAccountID: "acc", ResourceType: core.ResourceInstance, Region: "us-east-1", FlavorID: "t3.large", Usage: 10},
		}, got)
	})

	t.Run("Azure", func(t *testing.T) {
		got, err := n.Usage(ctx, core.CloudAccount{ID: "az", Type: core.CloudAzure}, since)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Standard_D2s_v3", got[0].FlavorID)
		assert.Equal(t, 3.0, got[0].Usage)
	})

	t.Run("GCPCoreRowsOnly", func(t *testing.T) {
		got, err := n.Usage(ctx, core.CloudAccount{ID: "g", Type: core.CloudGCP}, since)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 4.0, got[0].Usage)
	})

	t.Run("NoResources", func(t *testing.T) {
		got, err := n.Usage(ctx, core.CloudAccount{ID: "empty", Type: core.CloudAlibaba}, since)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NebiusHasNoExtractor", func(t *testing.T) {
		catalog.Add(Resource{ID: "n1", CloudAccountID: "neb", CloudResourceID: "x", ResourceType: CatalogInstance, LastSeen: day0})
		_, err := n.Usage(ctx, core.CloudAccount{ID: "neb", Type: core.CloudNebius}, since)
		assert.True(t, core.IsInvalidArgument(err))
	})
}

func TestNew_Memory(t *testing.T) {
	cfg := &config.Config{Billing: config.BillingConfig{Type: "memory"}}
	result, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBilling{}, result.Billing)
	assert.NoError(t, result.Close())

	cfg.Billing.Type = "cassandra"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
