package output

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"), 4326)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSummarize(t *testing.T) {
	fx := newFixture(t)
	s := Summarize(fx.report, fx.result)
	assert.Equal(t, Summary{Valid: 2, Invalid: 1, Unmatched: 1, Backtracks: 1, Clusters: 1, Converged: true}, s)

	s = Summarize(fx.report, nil)
	assert.Zero(t, s.Unmatched)
}

func TestStoreSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fx := newFixture(t)

	run, err := s.SaveRun(ctx, "a.geojson", "b.geojson", map[string]interface{}{"threshold": 0.8}, fx.report, fx.result)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "a.geojson", got.Source)
	assert.Equal(t, "b.geojson", got.Target)
	assert.Equal(t, 0.8, got.Params["threshold"])
	assert.Equal(t, run.Summary, got.Summary)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)

	_, err = s.GetRun(ctx, "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestStoreMatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fx := newFixture(t)

	run, err := s.SaveRun(ctx, "a", "b", nil, fx.report, fx.result)
	require.NoError(t, err)

	rows, err := s.Matches(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, [2]int{1, 11}, [2]int{rows[0].SourceID, rows[0].TargetID})
	assert.Equal(t, "valid", rows[0].Status)
	assert.Equal(t, 0.75, rows[0].Score)
	assert.Equal(t, 0.8, rows[0].Confidence)
	assert.Equal(t, 0.6, rows[0].Object)
	assert.Equal(t, 2, rows[0].Neighbors)
	assert.IsType(t, orb.LineString{}, rows[0].Link)

	assert.Equal(t, orb.Point{10, 10}, rows[1].Link, "coincident ends are stored as a point")

	assert.Equal(t, "invalid", rows[2].Status)
	assert.Nil(t, rows[2].Link, "invalid matches carry no link")

	invalid, err := s.Matches(ctx, run.ID, "invalid")
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, 3, invalid[0].SourceID)

	none, err := s.Matches(ctx, "missing", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fx := newFixture(t)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	for i := 0; i < 3; i++ {
		_, err := s.SaveRun(ctx, "a", "b", nil, fx.report, nil)
		require.NoError(t, err)
	}

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
	for i := 1; i < len(runs); i++ {
		assert.False(t, runs[i].CreatedAt.After(runs[i-1].CreatedAt), "newest first")
	}

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
