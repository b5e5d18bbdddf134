package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/shiftdetect/internal/logging"
	"github.com/ppiankov/shiftdetect/internal/model"

	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically in chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of the run history
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	ScoreRows     int
	GoldRows      int
	Combinations  int
	BestThreshold float64
	BestStrategy  model.Strategy
	BestF1        float64
	HasBest       bool
}

// SqlStore persists calibration runs in SQLite
type SqlStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates a SQLite DB at path and creates the schema.
// The parent directory (e.g. .shiftdetect) is created when missing.
func Open(path string) (*SqlStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SqlStore{db: db, logger: logging.New("store")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("store schema version %d is newer than supported %d", version, schemaVersion)
	}
	return nil
}

// Close closes the database
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// SaveRun stores a calibration run and its result matrix in one transaction
func (s *SqlStore) SaveRun(ctx context.Context, cal *model.Calibration) error {
	if cal == nil || cal.RunID == "" {
		return fmt.Errorf("save run: missing run id")
	}

	report, err := json.Marshal(cal)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	thresholds, err := json.Marshal(cal.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	strategies, err := json.Marshal(cal.Strategies)
	if err != nil {
		return fmt.Errorf("marshal strategies: %w", err)
	}

	var bestTh, bestF1 sql.NullFloat64
	var bestSt sql.NullString
	if cal.Best != nil {
		bestTh = sql.NullFloat64{Float64: cal.Best.Threshold, Valid: true}
		bestF1 = sql.NullFloat64{Float64: cal.Best.F1, Valid: true}
		bestSt = sql.NullString{String: string(cal.Best.Strategy), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, score_rows, gold_rows, thresholds, strategies, best_threshold, best_strategy, best_f1, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cal.RunID, cal.StartedAt.UTC().Format(timeLayout), cal.ScoreRows, cal.GoldRows,
		string(thresholds), string(strategies), bestTh, bestSt, bestF1, report)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, threshold, strategy, precision, recall, f1, support, matched, skipped, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare results: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range cal.Results {
		var errText sql.NullString
		if r.Error != "" {
			errText = sql.NullString{String: r.Error, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, cal.RunID, r.Threshold, string(r.Strategy),
			r.Precision, r.Recall, r.F1, r.Support, r.Matched, r.Skipped, errText); err != nil {
			return fmt.Errorf("insert result (%v, %s): %w", r.Threshold, r.Strategy, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("run saved", "run_id", cal.RunID, "results", len(cal.Results))
	return nil
}

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (s *SqlStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT r.run_id, r.started_at, r.score_rows, r.gold_rows,
		r.best_threshold, r.best_strategy, r.best_f1,
		(SELECT COUNT(*) FROM results WHERE results.run_id = r.run_id)
		FROM runs r ORDER BY r.started_at DESC, r.run_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var (
			rs      RunSummary
			started string
			bestTh  sql.NullFloat64
			bestSt  sql.NullString
			bestF1  sql.NullFloat64
		)
		if err := rows.Scan(&rs.RunID, &started, &rs.ScoreRows, &rs.GoldRows, &bestTh, &bestSt, &bestF1, &rs.Combinations); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rs.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at of %s: %w", rs.RunID, err)
		}
		if bestSt.Valid {
			rs.HasBest = true
			rs.BestThreshold = bestTh.Float64
			rs.BestStrategy = model.Strategy(bestSt.String)
			rs.BestF1 = bestF1.Float64
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// GetRun loads the full report of a stored run
func (s *SqlStore) GetRun(ctx context.Context, runID string) (*model.Calibration, error) {
	var report []byte
	err := s.db.QueryRowContext(ctx, "SELECT report FROM runs WHERE run_id = ?", runID).Scan(&report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	var cal model.Calibration
	if err := json.Unmarshal(report, &cal); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}

	// Best points into Results, as it does for a fresh run
	if cal.Best != nil {
		if r, ok := cal.Result(cal.Best.Threshold, cal.Best.Strategy); ok {
			cal.Best = r
		}
	}
	return &cal, nil
}
