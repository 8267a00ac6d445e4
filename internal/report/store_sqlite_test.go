package report

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/internal/core"
	"flavorwise/internal/storage"
)

func TestSQLiteStoreLifecycle(t *testing.T) {
	st, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "reports.db")})
	require.NoError(t, err)
	defer st.Close()

	store, err := New(context.Background(), st)
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, store)

	ctx := context.Background()
	for i, id := range []string{"report-a", "report-b", "report-c"} {
		require.NoError(t, store.Create(ctx, &Report{
			ID:          id,
			CreatedAt:   int64(i + 1),
			Accounts:    []core.CloudAccount{{ID: "acc", Type: core.CloudGCP}},
			TotalSaving: float64(i),
		}))
	}

	got, err := store.Get(ctx, "report-b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CreatedAt)
	assert.Equal(t, core.CloudGCP, got.Accounts[0].Type)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.List(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "report-c", list[0].ID)

	page, err := store.List(ctx, 1, "report-c")
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "report-b", page[0].ID)

	_, err = store.List(ctx, 1, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
