package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&LoadTracker{}))
	return db
}

func TestGetDefaultsToEpochZero(t *testing.T) {
	store := NewStore(setupTestDB(t))

	mark, err := store.Get(context.Background(), "brnz_prps_prop_sales_dtl")
	require.NoError(t, err)
	assert.True(t, mark.IsZero())
	assert.Equal(t, EpochZero, mark.LastLoadedAt)
	assert.Equal(t, int64(0), mark.Generation)
}

func TestAdvanceAppendsHistory(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Advance(ctx, "slvr_int_inv_dtl", t1, 1))
	require.NoError(t, store.Advance(ctx, "slvr_int_inv_dtl", t2, 2))

	mark, err := store.Get(ctx, "slvr_int_inv_dtl")
	require.NoError(t, err)
	assert.Equal(t, int64(2), mark.Generation)
	assert.WithinDuration(t, t2, mark.LastLoadedAt, time.Second)

	history, err := store.History(ctx, "slvr_int_inv_dtl", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first, tracker ids dense.
	assert.Equal(t, int64(2), history[0].TrackerID)
	assert.Equal(t, int64(1), history[1].TrackerID)
}

func TestAdvanceAllocatesTrackerIDsAcrossTables(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Advance(ctx, "slvr_int_prop", now, 1))
	require.NoError(t, store.Advance(ctx, "slvr_int_prop_comps", now, 1))

	history, err := store.History(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].TrackerID)
}

func TestGetIgnoresOtherTables(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Advance(ctx, "slvr_int_prop", time.Now().UTC(), 7))

	mark, err := store.Get(ctx, "slvr_int_inv_dtl")
	require.NoError(t, err)
	assert.True(t, mark.IsZero())
}

func TestLatestReturnsOneMarkPerTable(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Advance(ctx, "slvr_int_prop", now, 1))
	require.NoError(t, store.Advance(ctx, "slvr_int_prop", now.Add(time.Hour), 2))
	require.NoError(t, store.Advance(ctx, "slvr_int_inv_dtl", now, 4))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	byTable := map[string]int64{}
	for _, row := range latest {
		byTable[row.Table] = row.Generation
	}
	assert.Equal(t, int64(2), byTable["slvr_int_prop"])
	assert.Equal(t, int64(4), byTable["slvr_int_inv_dtl"])
}
