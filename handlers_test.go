package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/geoconflate/output"
)

// fakeStore serves one run with two matches
type fakeStore struct {
	runs    []output.Run
	matches map[string][]output.MatchRow
	err     error
	limit   int
}

func newFakeStore() *fakeStore {
	run := output.Run{
		ID:        "r1",
		Source:    "a.geojson",
		Target:    "b.geojson",
		Params:    map[string]interface{}{"geometry": "overlaps"},
		Summary:   output.Summary{Valid: 1, Invalid: 1, Converged: true},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	return &fakeStore{
		runs: []output.Run{run},
		matches: map[string][]output.MatchRow{"r1": {
			{RunID: "r1", SourceID: 1, TargetID: 11, Score: 0.9, Status: "valid", Confidence: 0.95,
				Link: orb.LineString{{0, 0}, {1, 1}}},
			{RunID: "r1", SourceID: 2, TargetID: 11, Score: 0.4, Status: "invalid", Confidence: 0.2},
		}},
	}
}

func (s *fakeStore) ListRuns(_ context.Context, limit int) ([]output.Run, error) {
	s.limit = limit
	return s.runs, s.err
}

func (s *fakeStore) GetRun(_ context.Context, id string) (*output.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.runs {
		if s.runs[i].ID == id {
			return &s.runs[i], nil
		}
	}
	return nil, eris.Wrapf(output.ErrNotFound, "run %s", id)
}

func (s *fakeStore) Matches(_ context.Context, runID, status string) ([]output.MatchRow, error) {
	var out []output.MatchRow
	for _, m := range s.matches[runID] {
		if status == "" || m.Status == status {
			out = append(out, m)
		}
	}
	return out, s.err
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(t, newHTTPServer(newFakeStore()), "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version, body["version"])
}

func TestMatchersEndpoint(t *testing.T) {
	w := serve(t, newHTTPServer(newFakeStore()), "/matchers")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body["matchers"], "overlaps")
	assert.Contains(t, body["aggregators"], "sum")
}

func TestListRuns(t *testing.T) {
	store := newFakeStore()
	h := newHTTPServer(store)

	w := serve(t, h, "/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, store.limit)
	var runs []output.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)

	w = serve(t, h, "/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.runs = nil
	w = serve(t, h, "/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestGetRun(t *testing.T) {
	h := newHTTPServer(newFakeStore())

	w := serve(t, h, "/runs/r1")
	require.Equal(t, http.StatusOK, w.Code)
	var run output.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	assert.Equal(t, 1, run.Summary.Valid)
	assert.Equal(t, "overlaps", run.Params["geometry"])

	w = serve(t, h, "/runs/r9")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunMatches(t *testing.T) {
	h := newHTTPServer(newFakeStore())

	tests := []struct {
		target     string
		wantStatus int
		wantRows   int
	}{
		{"/runs/r1/matches", http.StatusOK, 2},
		{"/runs/r1/matches?status=valid", http.StatusOK, 1},
		{"/runs/r1/matches?status=new", http.StatusOK, 0},
		{"/runs/r1/matches?status=maybe", http.StatusBadRequest, -1},
		{"/runs/r9/matches", http.StatusNotFound, -1},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := serve(t, h, tt.target)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantRows < 0 {
				return
			}
			var rows []output.MatchRow
			require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
			assert.NotNil(t, rows)
			assert.Len(t, rows, tt.wantRows)
		})
	}
}

func TestRunLinks(t *testing.T) {
	w := serve(t, newHTTPServer(newFakeStore()), "/runs/r1/links.geojson")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1, "matches without a link are skipped")
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, fc.Features[0].Geometry)
	assert.Equal(t, "valid", fc.Features[0].Properties["status"])
	assert.Equal(t, float64(11), fc.Features[0].Properties["target"])
}

func TestStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk on fire")
	h := newHTTPServer(store)

	for _, target := range []string{"/runs", "/runs/r1", "/runs/r1/matches"} {
		w := serve(t, h, target)
		assert.Equal(t, http.StatusInternalServerError, w.Code, target)
		assert.NotContains(t, w.Body.String(), "disk on fire")
	}
}

func TestHTTPServerWithSQLiteStore(t *testing.T) {
	app, _, dir := testApp(t)
	app.Config.Store.Path = dir + "/runs.db"
	require.NoError(t, app.Run(context.Background()))

	store, err := app.openStore(context.Background())
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	h := newHTTPServer(store)
	w := serve(t, h, "/runs/"+runs[0].ID+"/links.geojson")
	require.Equal(t, http.StatusOK, w.Code)
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 25)
}
