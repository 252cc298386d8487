package storage

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

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/ftbench/pkg/types"
)

// unmarshalJSON unmarshals JSON and logs any errors without failing.
// This is used for non-critical JSON fields where we want to gracefully
// handle corruption without failing the entire query.
func unmarshalJSON(data string, v any, field string, runID string) {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		slog.Warn("failed to unmarshal JSON field",
			"field", field,
			"runID", runID,
			"error", err.Error(),
			"dataLen", len(data))
	}
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrent performance
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bench_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT DEFAULT 'running',
		error_message TEXT,
		seed INTEGER NOT NULL DEFAULT 0,
		accounts INTEGER NOT NULL DEFAULT 0,
		workers INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		transfers_sent INTEGER DEFAULT 0,
		submissions INTEGER DEFAULT 0,
		resubmissions INTEGER DEFAULT 0,
		submit_failures INTEGER DEFAULT 0,
		status_checks INTEGER DEFAULT 0,
		tx_completed INTEGER DEFAULT 0,
		tx_failed INTEGER DEFAULT 0,
		average_tps REAL DEFAULT 0,
		peak_outstanding INTEGER DEFAULT 0,
		latency_stats TEXT,
		config TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bench_runs_started ON bench_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS run_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		transfers_sent INTEGER,
		submissions INTEGER,
		tx_completed INTEGER,
		tx_failed INTEGER,
		outstanding INTEGER,
		current_tps REAL,
		target_tps REAL,
		FOREIGN KEY (run_id) REFERENCES bench_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_samples_run ON run_samples(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Run migration to add new columns if they don't exist
	// Uses a helper that checks if column exists before adding
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"bench_runs", "status_checks", "ALTER TABLE bench_runs ADD COLUMN status_checks INTEGER DEFAULT 0"},
		{"bench_runs", "peak_outstanding", "ALTER TABLE bench_runs ADD COLUMN peak_outstanding INTEGER DEFAULT 0"},
		{"run_samples", "target_tps", "ALTER TABLE run_samples ADD COLUMN target_tps REAL DEFAULT 0"},
	}

	for _, m := range migrations {
		if !s.columnExists(m.table, m.column) {
			if _, err := s.db.Exec(m.ddl); err != nil {
				// Log but don't fail - migration might have already been applied
				fmt.Fprintf(os.Stderr, "warning: migration failed for %s.%s: %v\n", m.table, m.column, err)
			}
		}
	}

	return nil
}

// columnExists checks if a column exists in a table.
// Note: table and column names are validated to prevent SQL injection.
// SQLite identifiers only allow alphanumeric chars and underscore.
func (s *SQLiteStorage) columnExists(table, column string) bool {
	// Validate identifiers to prevent SQL injection
	if !isValidIdentifier(table) || !isValidIdentifier(column) {
		return false
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = '%s'", table, column)
	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// isValidIdentifier checks if a string is a valid SQLite identifier.
// Only allows alphanumeric characters and underscore.
func isValidIdentifier(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateRun creates a new benchmark run record.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *BenchRun) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	status := run.Status
	if status == "" {
		status = types.RunStatusRunning
	}

	// SQLite integers are signed; the seed round-trips through its bit pattern.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bench_runs (id, started_at, status, seed, accounts, workers, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt, status, int64(run.Seed), run.Accounts, run.Workers, string(configJSON))

	return err
}

// UpdateRun updates the live statistics of an existing run.
func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *BenchRun) error {
	latencyJSON, _ := json.Marshal(run.Latency)

	_, err := s.db.ExecContext(ctx, `
		UPDATE bench_runs SET
			duration_ms = ?,
			transfers_sent = ?,
			submissions = ?,
			resubmissions = ?,
			submit_failures = ?,
			status_checks = ?,
			tx_completed = ?,
			tx_failed = ?,
			average_tps = ?,
			peak_outstanding = ?,
			latency_stats = ?,
			status = ?,
			error_message = ?
		WHERE id = ?
	`, run.DurationMs, run.TransfersSent, run.Submissions, run.Resubmissions,
		run.SubmitFailures, run.StatusChecks, run.TxCompleted, run.TxFailed,
		run.AverageTPS, run.PeakOutstanding, string(latencyJSON), run.Status,
		nullString(run.ErrorMessage), run.ID)

	return err
}

// CompleteRun marks a benchmark run as finished with final statistics.
func (s *SQLiteStorage) CompleteRun(ctx context.Context, id string, run *BenchRun) error {
	latencyJSON, _ := json.Marshal(run.Latency)

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE bench_runs SET
			completed_at = ?,
			duration_ms = ?,
			transfers_sent = ?,
			submissions = ?,
			resubmissions = ?,
			submit_failures = ?,
			status_checks = ?,
			tx_completed = ?,
			tx_failed = ?,
			average_tps = ?,
			peak_outstanding = ?,
			latency_stats = ?,
			status = ?,
			error_message = ?
		WHERE id = ?
	`, now, run.DurationMs, run.TransfersSent, run.Submissions, run.Resubmissions,
		run.SubmitFailures, run.StatusChecks, run.TxCompleted, run.TxFailed,
		run.AverageTPS, run.PeakOutstanding, string(latencyJSON), run.Status,
		nullString(run.ErrorMessage), id)

	return err
}

const selectRunColumns = `
	SELECT id, started_at, completed_at, status, error_message, seed,
		accounts, workers, duration_ms,
		transfers_sent, submissions, resubmissions, submit_failures,
		COALESCE(status_checks, 0), tx_completed, tx_failed,
		average_tps, COALESCE(peak_outstanding, 0),
		latency_stats, config
	FROM bench_runs`

// GetRun retrieves a single benchmark run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*BenchRun, error) {
	row := s.db.QueryRowContext(ctx, selectRunColumns+` WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns a paginated list of benchmark runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error) {
	// Get total count
	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bench_runs").Scan(&total)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectRunColumns+`
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []BenchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedRuns{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// DeleteRun deletes a benchmark run and all associated samples.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM bench_runs WHERE id = ?", id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// BulkInsertSamples inserts time-series samples using a single transaction.
// The fsync overhead dominates for large inserts, so paying it once instead
// of per row keeps the post-run flush fast even for hour-long runs.
func (s *SQLiteStorage) BulkInsertSamples(ctx context.Context, runID string, samples []RunSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_samples (run_id, timestamp_ms, transfers_sent, submissions,
			tx_completed, tx_failed, outstanding, current_tps, target_tps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range samples {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := stmt.ExecContext(ctx, runID, p.TimestampMs, p.TransfersSent, p.Submissions,
			p.TxCompleted, p.TxFailed, p.Outstanding, p.CurrentTPS, p.TargetTPS)
		if err != nil {
			return err
		}
	}

	// Single commit at the end - this is where the fsync happens
	return tx.Commit()
}

// GetSamples retrieves time-series samples for a benchmark run.
func (s *SQLiteStorage) GetSamples(ctx context.Context, runID string) ([]RunSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, transfers_sent, submissions, tx_completed, tx_failed,
			outstanding, current_tps, COALESCE(target_tps, 0)
		FROM run_samples
		WHERE run_id = ?
		ORDER BY timestamp_ms
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []RunSample
	for rows.Next() {
		var p RunSample
		err := rows.Scan(&p.TimestampMs, &p.TransfersSent, &p.Submissions, &p.TxCompleted,
			&p.TxFailed, &p.Outstanding, &p.CurrentTPS, &p.TargetTPS)
		if err != nil {
			return nil, err
		}
		samples = append(samples, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (*BenchRun, error) {
	var run BenchRun
	var completedAt sql.NullTime
	var errorMsg sql.NullString
	var seed int64
	var latencyJSON, configJSON sql.NullString

	err := r.Scan(&run.ID, &run.StartedAt, &completedAt, &run.Status, &errorMsg, &seed,
		&run.Accounts, &run.Workers, &run.DurationMs,
		&run.TransfersSent, &run.Submissions, &run.Resubmissions, &run.SubmitFailures,
		&run.StatusChecks, &run.TxCompleted, &run.TxFailed,
		&run.AverageTPS, &run.PeakOutstanding,
		&latencyJSON, &configJSON)
	if err != nil {
		return nil, err
	}

	run.Seed = uint64(seed)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		run.ErrorMessage = errorMsg.String
	}
	if latencyJSON.Valid && latencyJSON.String != "" && latencyJSON.String != "null" {
		run.Latency = &types.LatencyStats{}
		unmarshalJSON(latencyJSON.String, run.Latency, "latency_stats", run.ID)
	}
	if configJSON.Valid && configJSON.String != "" && configJSON.String != "null" {
		run.Config = &RunConfig{}
		unmarshalJSON(configJSON.String, run.Config, "config", run.ID)
	}

	return &run, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
