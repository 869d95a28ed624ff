package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrio-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var testOpts = model.Options{ConversionOption: "dry_matter", Direction: model.PreferImport}

func TestSQLite_RunLifecycle(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 2013, testOpts)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	matrix, err := st.StartStage(ctx, run.ID, "matrix")
	require.NoError(t, err)
	require.NoError(t, st.FinishStage(ctx, matrix.ID, model.StageStatusComplete, 42, ""))

	feed, err := st.StartStage(ctx, run.ID, "feed")
	require.NoError(t, err)
	require.NoError(t, st.FinishStage(ctx, feed.ID, model.StageStatusFailed, 0, "faostat: missing input file"))
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusFailed, "feed: missing input"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2013, got.Year)
	assert.Equal(t, testOpts, got.Options)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "feed: missing input", got.Error)
	require.Len(t, got.Stages, 2)
	assert.Equal(t, "matrix", got.Stages[0].Name)
	assert.Equal(t, model.StageStatusComplete, got.Stages[0].Status)
	assert.Equal(t, int64(42), got.Stages[0].Rows)
	require.NotNil(t, got.Stages[0].CompletedAt)
	assert.Equal(t, "feed", got.Stages[1].Name)
	assert.Equal(t, "faostat: missing input file", got.Stages[1].Error)
}

func TestSQLite_NotFound(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	err = st.FinishRun(ctx, "missing", model.RunStatusComplete, "")
	require.ErrorIs(t, err, ErrNotFound)

	err = st.FinishStage(ctx, "missing", model.StageStatusComplete, 0, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, year := range []int{2012, 2013, 2013} {
		_, err := st.CreateRun(ctx, year, testOpts)
		require.NoError(t, err)
	}
	last, err := st.CreateRun(ctx, 2014, testOpts)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, last.ID, model.RunStatusComplete, ""))

	tests := []struct {
		name   string
		filter RunFilter
		want   int
	}{
		{"all", RunFilter{}, 4},
		{"by year", RunFilter{Year: 2013}, 2},
		{"by status", RunFilter{Status: model.RunStatusComplete}, 1},
		{"limit", RunFilter{Limit: 3}, 3},
		{"offset", RunFilter{Limit: 10, Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := st.ListRuns(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, runs, tt.want)
		})
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, last.ID, runs[0].ID, "newest first")
}

func TestSQLite_SaveFlows(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 2013, testOpts)
	require.NoError(t, err)

	beef := 867
	rows := []model.MatrixRow{
		{Consumer: 1, Producer: 2, Item: 15, Year: 2013, Value: 10},
		{Consumer: 1, Producer: 2, Item: 15, Year: 2013, Value: 3, AnimalProduct: &beef},
	}
	n, err := st.SaveFlows(ctx, run.ID, MatrixFeed, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Saving again replaces rows instead of duplicating them.
	_, err = st.SaveFlows(ctx, run.ID, MatrixFeed, rows)
	require.NoError(t, err)
	count, err := st.CountFlows(ctx, run.ID, MatrixFeed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = st.CountFlows(ctx, run.ID, MatrixTrade)
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err = st.SaveFlows(ctx, run.ID, MatrixTrade, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
