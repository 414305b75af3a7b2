package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/flowreaper/pkg/pool"
	"github.com/3leaps/flowreaper/pkg/reap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleResult(runID string, started time.Time) *reap.Result {
	boundary := 5 * time.Minute
	return &reap.Result{
		RunID:       runID,
		StartedAt:   started,
		CompletedAt: started.Add(30 * time.Second),
		Stats: reap.Stats{
			Done:        3,
			Running:     1,
			IdlePending: 1,
			IdleFree:    2,
			Terminated:  2,
		},
		Terminated: []reap.Termination{
			{
				ClusterID:          "j-1",
				Name:               "etl",
				TimeIdle:           2 * time.Hour,
				TimeToHourBoundary: boundary,
				HasHourBoundary:    true,
				Pool:               &pool.Identity{Hash: "abc123", Name: "analytics"},
			},
			{
				ClusterID: "j-2",
				Name:      "adhoc",
				Pending:   true,
				TimeIdle:  90 * time.Minute,
			},
		},
	}
}

func TestStore_RecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	started := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-1", started), false))
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-2", started.Add(time.Hour)), true))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	require.Equal(t, "run-2", runs[0].RunID)
	require.True(t, runs[0].DryRun)
	require.Equal(t, "run-1", runs[1].RunID)
	require.False(t, runs[1].DryRun)

	require.Equal(t, 7, runs[1].Stats.Inspected())
	require.Equal(t, 2, runs[1].Stats.Terminated)
	require.True(t, runs[1].StartedAt.Equal(started))
	require.True(t, runs[1].CompletedAt.Equal(started.Add(30*time.Second)))
}

func TestStore_ListTerminations(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	started := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-1", started), false))

	terms, err := store.ListTerminations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, terms, 2)

	require.Equal(t, "j-1", terms[0].ClusterID)
	require.Equal(t, 2*time.Hour, terms[0].TimeIdle)
	require.NotNil(t, terms[0].TimeToHourBoundary)
	require.Equal(t, 5*time.Minute, *terms[0].TimeToHourBoundary)
	require.Equal(t, "abc123", terms[0].PoolHash)
	require.Equal(t, "analytics", terms[0].PoolName)

	require.Equal(t, "j-2", terms[1].ClusterID)
	require.True(t, terms[1].Pending)
	require.Nil(t, terms[1].TimeToHourBoundary)
	require.Empty(t, terms[1].PoolHash)
}

func TestStore_ListTerminations_UnknownRun(t *testing.T) {
	store := openTestStore(t)

	terms, err := store.ListTerminations(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, terms)
}

func TestStore_RecordRun_NilResult(t *testing.T) {
	store := openTestStore(t)

	err := store.RecordRun(context.Background(), nil, false)
	require.Error(t, err)
}

func TestStore_ListRuns_Limit(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := sampleResult("run-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.RecordRun(ctx, r, false))
	}

	runs, err := store.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "run-e", runs[0].RunID)
}

func TestOpen_MissingPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestOpen_ReopenExisting(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	started := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-1", started), false))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	runs, err := reopened.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
