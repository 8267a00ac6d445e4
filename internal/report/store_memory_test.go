package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/internal/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := &Report{
		ID:        "report-1",
		CreatedAt: 100,
		Accounts:  []core.CloudAccount{{ID: "acc", Type: core.CloudAWS}},
		Recommendations: []core.MigrationRecommendation{
			{ID: "rec-1", CloudAccountID: "acc", SourceFlavor: "m5.large", Saving: 1.92},
		},
		TotalSaving: 1.92,
	}
	require.NoError(t, store.Create(ctx, r))
	assert.Error(t, store.Create(ctx, r), "duplicate id")

	got, err := store.Get(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, r, got)

	// Stored copies are isolated from callers.
	got.Recommendations[0].Saving = 0
	again, err := store.Get(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, 1.92, again.Recommendations[0].Saving)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListAfter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, r := range []*Report{
		{ID: "report-c", CreatedAt: 3},
		{ID: "report-b", CreatedAt: 2},
		{ID: "report-a", CreatedAt: 1},
	} {
		require.NoError(t, store.Create(ctx, r))
	}

	list, err := store.List(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "report-c", list[0].ID)
	assert.Equal(t, "report-b", list[1].ID)

	next, err := store.List(ctx, 2, "report-b")
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "report-a", next[0].ID)

	last, err := store.List(ctx, 2, "report-a")
	require.NoError(t, err)
	assert.Empty(t, last)

	_, err = store.List(ctx, 2, "report-x")
	assert.ErrorIs(t, err, ErrNotFound)
}
