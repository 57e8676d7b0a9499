package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/aggregate"
	"github.com/kwv/geoconflate/matcher"
	"github.com/kwv/geoconflate/output"
)

// runStore is the read side of output.Store
type runStore interface {
	ListRuns(ctx context.Context, limit int) ([]output.Run, error)
	GetRun(ctx context.Context, id string) (*output.Run, error)
	Matches(ctx context.Context, runID, status string) ([]output.MatchRow, error)
}

// newHTTPServer creates the API router over a run store
func newHTTPServer(store runStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"version":   Version,
			"timestamp": time.Now().UTC(),
		})
	})

	r.Get("/matchers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{
			"matchers":    matcher.Names(),
			"aggregators": aggregate.Names(),
		})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			limit := 0
			if s := r.URL.Query().Get("limit"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
					return
				}
				limit = n
			}
			runs, err := store.ListRuns(r.Context(), limit)
			if err != nil {
				storeError(w, err)
				return
			}
			if runs == nil {
				runs = []output.Run{}
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			run, err := store.GetRun(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				storeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/{id}/matches", func(w http.ResponseWriter, r *http.Request) {
			rows, ok := runMatches(w, r, store)
			if !ok {
				return
			}
			if rows == nil {
				rows = []output.MatchRow{}
			}
			writeJSON(w, http.StatusOK, rows)
		})

		r.Get("/{id}/links.geojson", func(w http.ResponseWriter, r *http.Request) {
			rows, ok := runMatches(w, r, store)
			if !ok {
				return
			}
			fc := geojson.NewFeatureCollection()
			for _, m := range rows {
				if m.Link == nil {
					continue
				}
				f := geojson.NewFeature(m.Link)
				f.Properties["source"] = m.SourceID
				f.Properties["target"] = m.TargetID
				f.Properties["score"] = m.Score
				f.Properties["status"] = m.Status
				f.Properties["confidence"] = m.Confidence
				fc.Append(f)
			}
			data, err := fc.MarshalJSON()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "encode links")
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
		})
	})

	return r
}

// runMatches loads the matches of the {id} run, checking that the run exists
func runMatches(w http.ResponseWriter, r *http.Request, store runStore) ([]output.MatchRow, bool) {
	id := chi.URLParam(r, "id")
	if _, err := store.GetRun(r.Context(), id); err != nil {
		storeError(w, err)
		return nil, false
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "", "valid", "invalid", "new":
	default:
		writeError(w, http.StatusBadRequest, "status must be valid, invalid or new")
		return nil, false
	}
	rows, err := store.Matches(r.Context(), id, status)
	if err != nil {
		storeError(w, err)
		return nil, false
	}
	return rows, true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func storeError(w http.ResponseWriter, err error) {
	if eris.Is(err, output.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	zap.L().Error("store query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "store query failed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
