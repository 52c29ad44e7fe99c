package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
	"github.com/banshee-data/nearfilter/internal/lidar/pipeline"
	"github.com/banshee-data/nearfilter/internal/monitoring"
	"github.com/banshee-data/nearfilter/internal/timeutil"
)

// ErrNoActiveRun is returned by RecordRevolution before StartRun.
var ErrNoActiveRun = errors.New("no active run")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Store records one run per source session and one row per filtered
// revolution. It implements pipeline.Sink.
type Store struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock

	mu    sync.Mutex
	runID string
}

// Run describes one processing session.
type Run struct {
	RunID     string            `json:"run_id"`
	Source    string            `json:"source"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Strict    bool              `json:"strict"`
	Config    nearfilter.Config `json:"config"`
}

// RevolutionRecord is the stored form of a pipeline.Result.
type RevolutionRecord struct {
	RunID          string             `json:"run_id"`
	RevolutionID   uint64             `json:"revolution_id"`
	ProcessedAt    time.Time          `json:"processed_at"`
	Speed          float64            `json:"speed_deg_s"`
	Strict         bool               `json:"strict"`
	Partial        bool               `json:"partial"`
	StartTimestamp uint64             `json:"start_timestamp_ms"`
	EndTimestamp   uint64             `json:"end_timestamp_ms"`
	BuilderDropped int                `json:"builder_dropped"`
	Stats          nearfilter.Stats   `json:"stats"`
	Summary        nearfilter.Summary `json:"summary"`
}

// RunTotals aggregates the revolutions of one run.
type RunTotals struct {
	RunID       string  `json:"run_id"`
	Revolutions int     `json:"revolutions"`
	Input       int     `json:"input"`
	Output      int     `json:"output"`
	Promoted    int     `json:"promoted"`
	Overflow    int     `json:"overflow"`
	KeptRatio   float64 `json:"kept_ratio"`
	MeanSpeed   float64 `json:"mean_speed_deg_s"`
}

// Open opens (creating if needed) the database at path, applies pragmas and
// runs pending migrations.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with an injectable clock for run timestamps.
func OpenWithClock(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, clock: clock}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ActiveRun returns the run receiving revolutions, or "".
func (s *Store) ActiveRun() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// StartRun opens a new run and makes it the target of RecordRevolution.
func (s *Store) StartRun(ctx context.Context, source string, cfg nearfilter.Config, strict bool) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nearfilter_runs (
			run_id, source, started_unix_nanos, strict,
			confidence_high, confidence_middle, confidence_low, scan_freq, capacity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, source, s.clock.Now().UnixNano(), strict,
		cfg.ConfidenceHigh, cfg.ConfidenceMiddle, cfg.ConfidenceLow, cfg.ScanFreq, cfg.Capacity,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	s.mu.Lock()
	s.runID = runID
	s.mu.Unlock()
	monitoring.Logf("started run %s for %s", runID, source)
	return runID, nil
}

// EndRun stamps the active run's end time and detaches it.
func (s *Store) EndRun(ctx context.Context) error {
	s.mu.Lock()
	runID := s.runID
	s.runID = ""
	s.mu.Unlock()
	if runID == "" {
		return ErrNoActiveRun
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE nearfilter_runs SET ended_unix_nanos = ? WHERE run_id = ?`,
		s.clock.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("failed to end run %s: %w", runID, err)
	}
	return nil
}

// RecordRevolution stores one filtered revolution under the active run.
func (s *Store) RecordRevolution(ctx context.Context, res *pipeline.Result) error {
	runID := s.ActiveRun()
	if runID == "" {
		return ErrNoActiveRun
	}

	st, sum := res.Stats, res.Summary
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nearfilter_revolutions (
			run_id, revolution_id, processed_unix_nanos, speed, strict, partial,
			start_timestamp_ms, end_timestamp_ms,
			input_points, invalid_points, far_points, accepted_points, ambiguous_points,
			rejected_points, clusters, promoted_points, output_points, overflow_points,
			builder_dropped, gap_threshold_deg,
			mean_intensity, stddev_intensity, mean_distance_mm
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(res.RevolutionID), res.ProcessedAt.UnixNano(), res.Speed, res.Strict, res.Partial,
		int64(res.StartTimestamp), int64(res.EndTimestamp),
		st.Input, st.Invalid, st.Far, st.Accepted, st.Ambiguous,
		st.Rejected, st.Clusters, st.Promoted, st.Output, st.Overflow,
		res.BuilderDropped, st.GapThreshold,
		sum.MeanIntensity, sum.StdDevIntensity, sum.MeanDistance,
	)
	if err != nil {
		return fmt.Errorf("failed to insert revolution %d: %w", res.RevolutionID, err)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source, started_unix_nanos, ended_unix_nanos, strict,
		       confidence_high, confidence_middle, confidence_low, scan_freq, capacity
		FROM nearfilter_runs
		ORDER BY started_unix_nanos DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Source, &started, &ended, &r.Strict,
			&r.Config.ConfidenceHigh, &r.Config.ConfidenceMiddle, &r.Config.ConfidenceLow,
			&r.Config.ScanFreq, &r.Config.Capacity); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			r.EndedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRevolutions returns up to limit revolutions of runID, most recent
// first. limit <= 0 returns all of them.
func (s *Store) ListRevolutions(ctx context.Context, runID string, limit int) ([]RevolutionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT revolution_id, processed_unix_nanos, speed, strict, partial,
		       start_timestamp_ms, end_timestamp_ms,
		       input_points, invalid_points, far_points, accepted_points, ambiguous_points,
		       rejected_points, clusters, promoted_points, output_points, overflow_points,
		       builder_dropped, gap_threshold_deg,
		       mean_intensity, stddev_intensity, mean_distance_mm
		FROM nearfilter_revolutions
		WHERE run_id = ?
		ORDER BY revolution_id DESC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query revolutions: %w", err)
	}
	defer rows.Close()

	var out []RevolutionRecord
	for rows.Next() {
		rec := RevolutionRecord{RunID: runID}
		var revID, processed, startTS, endTS int64
		st := &rec.Stats
		if err := rows.Scan(&revID, &processed, &rec.Speed, &rec.Strict, &rec.Partial,
			&startTS, &endTS,
			&st.Input, &st.Invalid, &st.Far, &st.Accepted, &st.Ambiguous,
			&st.Rejected, &st.Clusters, &st.Promoted, &st.Output, &st.Overflow,
			&rec.BuilderDropped, &st.GapThreshold,
			&rec.Summary.MeanIntensity, &rec.Summary.StdDevIntensity, &rec.Summary.MeanDistance); err != nil {
			return nil, fmt.Errorf("failed to scan revolution: %w", err)
		}
		rec.RevolutionID = uint64(revID)
		rec.ProcessedAt = time.Unix(0, processed).UTC()
		rec.StartTimestamp = uint64(startTS)
		rec.EndTimestamp = uint64(endTS)
		rec.Summary.Count = st.Output
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RunTotals sums the stored revolutions of runID.
func (s *Store) RunTotals(ctx context.Context, runID string) (RunTotals, error) {
	t := RunTotals{RunID: runID}
	var meanSpeed sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(input_points), 0),
		       COALESCE(SUM(output_points), 0),
		       COALESCE(SUM(promoted_points), 0),
		       COALESCE(SUM(overflow_points), 0),
		       AVG(speed)
		FROM nearfilter_revolutions
		WHERE run_id = ?`, runID).Scan(&t.Revolutions, &t.Input, &t.Output, &t.Promoted, &t.Overflow, &meanSpeed)
	if err != nil {
		return RunTotals{}, fmt.Errorf("failed to total run %s: %w", runID, err)
	}
	if t.Input > 0 {
		t.KeptRatio = float64(t.Output) / float64(t.Input)
	}
	t.MeanSpeed = meanSpeed.Float64
	return t, nil
}
