package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var runColumnList = []string{
	"id", "worker_name", "started_at", "finished_at", "status",
	"items_found", "items_processed", "items_failed", "duration_ms", "error_message",
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(
		&run.ID, &run.WorkerName, &startedAt, &finishedAt, &run.Status,
		&run.ItemsFound, &run.ItemsProcessed, &run.ItemsFailed, &run.DurationMillis, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseNullableTime(finishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

// StartRun appends a running execution-log entry and returns its id.
func (s *Store) StartRun(ctx context.Context, workerName string) (string, error) {
	ctx = ensureContext(ctx)
	id := uuid.NewString()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO worker_runs (id, worker_name, started_at, status) VALUES (?, ?, ?, ?)`,
		id, workerName, formatTime(time.Now()), RunStatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("start run for %s: %w", workerName, err)
	}
	return id, nil
}

// FinishRun finalizes an execution-log entry. The entry is written exactly
// once at start and updated exactly once here; the log is append-only beyond
// that.
func (s *Store) FinishRun(ctx context.Context, id, status string, found, processed, failed int, errorMessage string) error {
	ctx = ensureContext(ctx)
	now := time.Now()
	var startedAt string
	err := s.db.QueryRowContext(ctx, `SELECT started_at FROM worker_runs WHERE id = ?`, id).Scan(&startedAt)
	if err != nil {
		return fmt.Errorf("read run %s: %w", id, err)
	}
	started, err := parseTime(startedAt)
	if err != nil {
		return err
	}
	duration := now.Sub(started).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	_, err = s.execWithRetry(ctx,
		`UPDATE worker_runs SET finished_at = ?, status = ?, items_found = ?, items_processed = ?,
            items_failed = ?, duration_ms = ?, error_message = ? WHERE id = ?`,
		formatTime(now), status, found, processed, failed, duration, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// RecentRuns returns the newest execution-log entries, optionally filtered
// to one worker.
func (s *Store) RecentRuns(ctx context.Context, workerName string, limit int) ([]*Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 50
	}
	q := builder.
		Select(runColumnList...).
		From("worker_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit))
	if workerName != "" {
		q = q.Where(sq.Eq{"worker_name": workerName})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build logs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// HealthSnapshot aggregates the execution log per worker: last run and
// status over all time, counts and averages over entries started since the
// given cutoff.
func (s *Store) HealthSnapshot(ctx context.Context, since time.Time) (map[string]WorkerHealth, error) {
	ctx = ensureContext(ctx)
	health := make(map[string]WorkerHealth)

	rows, err := s.db.QueryContext(ctx,
		`SELECT wr.worker_name, wr.started_at, wr.status
         FROM worker_runs wr
         WHERE wr.started_at = (
            SELECT MAX(started_at) FROM worker_runs WHERE worker_name = wr.worker_name
         )`,
	)
	if err != nil {
		return nil, fmt.Errorf("select last runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name      string
			startedAt string
			status    string
		)
		if err := rows.Scan(&name, &startedAt, &status); err != nil {
			return nil, fmt.Errorf("scan last run: %w", err)
		}
		started, err := parseTime(startedAt)
		if err != nil {
			return nil, err
		}
		entry := health[name]
		entry.LastRunAt = &started
		entry.LastStatus = status
		health[name] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last runs: %w", err)
	}

	aggRows, err := s.db.QueryContext(ctx,
		`SELECT worker_name, COUNT(1),
            COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(AVG(duration_ms), 0),
            COALESCE(SUM(items_processed), 0)
         FROM worker_runs
         WHERE started_at >= ? AND status != ?
         GROUP BY worker_name`,
		RunStatusSuccess, RunStatusFailure, formatTime(since), RunStatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate runs: %w", err)
	}
	defer aggRows.Close()
	for aggRows.Next() {
		var (
			name        string
			runs        int
			successful  int
			failed      int
			avgDuration float64
			items       int
		)
		if err := aggRows.Scan(&name, &runs, &successful, &failed, &avgDuration, &items); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		entry := health[name]
		entry.Runs = runs
		entry.Successful = successful
		entry.Failed = failed
		entry.AvgDurationMS = int64(avgDuration)
		entry.ItemsProcessed = items
		health[name] = entry
	}
	if err := aggRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}

	return health, nil
}
