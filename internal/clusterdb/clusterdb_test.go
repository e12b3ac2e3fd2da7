package clusterdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hitreco/internal/hits"
	"github.com/banshee-data/hitreco/internal/timeutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "clusters.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testClusters() []*hits.Cluster {
	a := &hits.Cluster{
		ID: 0, Layer: 1, Position: [3]float64{1.5, -0.5, 3.25}, E: 1.2e-3, ADC: 40,
		Size:   hits.Diagonal3(1e-4, 2e-4, 0.25),
		Error:  hits.Diagonal3(1e-4/12, 2e-4/12, 0.25/12),
		HitIDs: []hits.HitID{3, 4, 9},
	}
	b := a.Clone()
	b.ID, b.Layer, b.E, b.HitIDs = 1, 2, 4e-4, []hits.HitID{11}
	return []*hits.Cluster{a, b}
}

func TestOpen_MigratesToLatest(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Opening again is a no-op migration.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	db.SetClock(clock)

	run, err := db.CreateRun(ctx, []string{"graph", "peak"}, map[string]int{"workers": 2})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"graph", "peak"}, got.Algorithms)
	assert.JSONEq(t, `{"workers":2}`, got.ConfigJSON)
	assert.Nil(t, got.FinishedAt)
	assert.True(t, got.StartedAt.Equal(start))

	clock.Advance(3 * time.Minute)
	require.NoError(t, db.FinishRun(ctx, run.ID, 10, 1))
	got, err = db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Events)
	assert.Equal(t, 1, got.Aborted)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 3*time.Minute, got.FinishedAt.Sub(got.StartedAt))

	assert.ErrorIs(t, db.FinishRun(ctx, "missing", 0, 0), ErrRunNotFound)
	_, err = db.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunSink_PersistAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run, err := db.CreateRun(ctx, []string{"graph"}, nil)
	require.NoError(t, err)

	sink := NewRunSink(db, run.ID)
	want := testClusters()
	require.NoError(t, sink.PersistEvent(ctx, 5, want))
	require.NoError(t, sink.PersistEvent(ctx, 6, want[:1]))

	got, err := db.ListClusters(ctx, run.ID, 5)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListClusters mismatch (-want +got):\n%s", diff)
	}

	counts, err := db.CountByLayer(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 1, counts[0].Layer)
	assert.Equal(t, 2, counts[0].Clusters)
	assert.InDelta(t, 2.4e-3, counts[0].Energy, 1e-15)
	assert.Equal(t, 2, counts[1].Layer)
	assert.Equal(t, 1, counts[1].Clusters)
}

func TestInsertClusters_RollsBackOnConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run, err := db.CreateRun(ctx, []string{"peak"}, nil)
	require.NoError(t, err)

	dup := testClusters()
	dup[1].ID = dup[0].ID
	require.Error(t, db.InsertClusters(ctx, run.ID, 1, dup))

	got, err := db.ListClusters(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertClusters_UnknownRun(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.InsertClusters(context.Background(), "no-such-run", 1, testClusters()))
}
