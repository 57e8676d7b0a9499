package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/result"
	"github.com/kwv/geoconflate/validate"
)

// ErrNotFound is returned for unknown run ids
var ErrNotFound = eris.New("not found")

// Summary counts the outcome of one run
type Summary struct {
	Valid      int      `json:"valid"`
	Invalid    int      `json:"invalid"`
	New        int      `json:"new"`
	Unmatched  int      `json:"unmatched"`
	Backtracks int      `json:"backtracks"`
	Clusters   int      `json:"clusters"`
	Converged  bool     `json:"converged"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Summarize counts a report and its assembled result
func Summarize(report *validate.Report, res *result.Result) Summary {
	s := Summary{
		Valid:      report.Count(validate.Valid),
		Invalid:    report.Count(validate.Invalid),
		New:        report.Count(validate.New),
		Backtracks: report.Backtracks,
		Clusters:   report.Clusters,
		Converged:  report.Converged,
		Warnings:   report.Warnings,
	}
	if res != nil {
		s.Unmatched = len(res.Unmatched)
	}
	return s
}

// Run is one stored conflation run
type Run struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Params    map[string]interface{} `json:"params"`
	Summary   Summary                `json:"summary"`
	CreatedAt time.Time              `json:"created_at"`
}

// MatchRow is one stored match outcome
type MatchRow struct {
	RunID      string       `json:"run_id"`
	SourceID   int          `json:"source"`
	TargetID   int          `json:"target"`
	Score      float64      `json:"score"`
	Status     string       `json:"status"`
	Confidence float64      `json:"confidence"`
	Context    float64      `json:"context"`
	Object     float64      `json:"object"`
	Radius     float64      `json:"radius"`
	Neighbors  int          `json:"neighbors"`
	Link       orb.Geometry `json:"-"`
}

// Store persists runs and their matches in sqlite
type Store struct {
	db   *sql.DB
	srid int
}

// NewStore opens the database at dsn in WAL mode. srid is written into
// every stored link geometry.
func NewStore(dsn string, srid int) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &Store{db: db, srid: srid}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	target     TEXT NOT NULL,
	params     TEXT NOT NULL,
	summary    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS matches (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source_id  INTEGER NOT NULL,
	target_id  INTEGER NOT NULL,
	score      REAL NOT NULL,
	status     TEXT NOT NULL,
	confidence REAL NOT NULL,
	context    REAL NOT NULL,
	object     REAL NOT NULL,
	radius     REAL NOT NULL,
	neighbors  INTEGER NOT NULL,
	link       BLOB,
	PRIMARY KEY (run_id, source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(run_id, status);
`

// Migrate creates the schema
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run, every outcome of report and, when res carries links,
// the link geometry of each match
func (s *Store) SaveRun(ctx context.Context, source, target string, params map[string]interface{}, report *validate.Report, res *result.Result) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Source:    source,
		Target:    target,
		Params:    params,
		Summary:   Summarize(report, res),
		CreatedAt: time.Now().UTC(),
	}
	if run.Params == nil {
		run.Params = map[string]interface{}{}
	}
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal summary")
	}

	links := make(map[[2]int]*feature.Object)
	if res != nil {
		for _, l := range res.Links {
			src, _ := l.Attrs[result.AttrSource].(int64)
			tgt, _ := l.Attrs[result.AttrTarget].(int64)
			links[[2]int{int(src), int(tgt)}] = l
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, target, params, summary, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, source, target, string(paramsJSON), string(summaryJSON), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO matches (run_id, source_id, target_id, score, status, confidence, context, object, radius, neighbors, link)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare match insert")
	}
	defer stmt.Close()

	for _, o := range report.Outcomes {
		key := [2]int{o.Match.SourceID(), o.Match.TargetID()}
		var blob []byte
		if l, ok := links[key]; ok {
			if blob, err = EncodeEWKB(l.Geometry, s.srid); err != nil {
				return nil, err
			}
		}
		rec := o.Record
		_, err = stmt.ExecContext(ctx,
			run.ID, key[0], key[1], o.Match.Score, o.Status.String(),
			rec.Confidence, rec.Context, rec.Object, rec.Radius, rec.Neighbors, blob,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert match %s", o.Match)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run")
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var params, summary string
	if err := row.Scan(&r.ID, &r.Source, &r.Target, &params, &summary, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Wrap(ErrNotFound, "sqlite: run")
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal params")
	}
	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal summary")
	}
	return &r, nil
}

// GetRun returns one run
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, target, params, summary, created_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "run %s", id)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A non-positive limit means 100.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, target, params, summary, created_at FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// Matches returns the stored matches of a run in source, target order.
// An empty status returns every status.
func (s *Store) Matches(ctx context.Context, runID, status string) ([]MatchRow, error) {
	query := `SELECT run_id, source_id, target_id, score, status, confidence, context, object, radius, neighbors, link
		FROM matches WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY source_id, target_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list matches of %s", runID)
	}
	defer rows.Close()

	var out []MatchRow
	for rows.Next() {
		var m MatchRow
		var blob []byte
		if err := rows.Scan(&m.RunID, &m.SourceID, &m.TargetID, &m.Score, &m.Status,
			&m.Confidence, &m.Context, &m.Object, &m.Radius, &m.Neighbors, &blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		if m.Link, _, err = DecodeEWKB(blob); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list matches iterate")
}
