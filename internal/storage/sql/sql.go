// Package sql implements storage.Storage on database/sql. It is exercised
// against modernc.org/sqlite and pgx; queries are written with ? placeholders
// and rewritten per driver.
package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/sqlutil"
)

type sqlStorage struct {
	db     *sql.DB
	driver string
}

func NewStorage(db *sql.DB, driver string) storage.Storage {
	return &sqlStorage{db: db, driver: driver}
}

func (s *sqlStorage) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, sqlutil.Rewrite(s.driver, query), args...)
}

func (s *sqlStorage) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, sqlutil.Rewrite(s.driver, query), args...)
}

func (s *sqlStorage) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, sqlutil.Rewrite(s.driver, query), args...)
}

func (s *sqlStorage) Init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner TEXT NOT NULL,
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			schedule_cron TEXT,
			timeout_seconds INTEGER DEFAULT 0,
			retry_on_failure BOOLEAN DEFAULT FALSE,
			max_retries INTEGER DEFAULT 0,
			nodes TEXT,
			connections TEXT,
			total_runs BIGINT DEFAULT 0,
			success_runs BIGINT DEFAULT 0,
			failed_runs BIGINT DEFAULT 0,
			last_executed_at TIMESTAMP,
			average_duration_ms DOUBLE PRECISION DEFAULT 0,
			last_fired_at BIGINT DEFAULT 0,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			triggered_by TEXT,
			trigger_type TEXT,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			duration_ms BIGINT DEFAULT 0,
			input TEXT,
			output TEXT,
			error TEXT,
			trace TEXT,
			node_logs TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			provider TEXT NOT NULL,
			name TEXT NOT NULL,
			data TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			UNIQUE(owner, provider, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_owner ON workflows(owner)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute init query: %w", err)
		}
	}

	// Migrations: Add new columns if missing
	migrationQueries := []string{
		"ALTER TABLE workflows ADD COLUMN last_fired_at BIGINT DEFAULT 0",
		"ALTER TABLE executions ADD COLUMN trace TEXT",
	}

	for _, q := range migrationQueries {
		// Ignore errors as the column might already exist
		_, _ = s.db.ExecContext(ctx, q)
	}

	return nil
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}

const workflowColumns = `id, name, owner, status, trigger_type, schedule_cron,
	timeout_seconds, retry_on_failure, max_retries, nodes, connections,
	total_runs, success_runs, failed_runs, last_executed_at,
	average_duration_ms, last_fired_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*storage.Workflow, error) {
	var (
		w         storage.Workflow
		cronExpr  sql.NullString
		nodesStr  sql.NullString
		connsStr  sql.NullString
		lastExec  sql.NullTime
		watermark int64
	)
	err := row.Scan(&w.ID, &w.Name, &w.Owner, &w.Status, &w.TriggerType, &cronExpr,
		&w.TimeoutSeconds, &w.RetryOnFailure, &w.MaxRetries, &nodesStr, &connsStr,
		&w.TotalRuns, &w.SuccessRuns, &w.FailedRuns, &lastExec,
		&w.AvgDurationMS, &watermark, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if cronExpr.Valid {
		w.ScheduleCron = cronExpr.String
	}
	if nodesStr.Valid && nodesStr.String != "" {
		if err := json.Unmarshal([]byte(nodesStr.String), &w.Nodes); err != nil {
			return nil, fmt.Errorf("failed to decode nodes: %w", err)
		}
	}
	if connsStr.Valid && connsStr.String != "" {
		if err := json.Unmarshal([]byte(connsStr.String), &w.Connections); err != nil {
			return nil, fmt.Errorf("failed to decode connections: %w", err)
		}
	}
	if lastExec.Valid {
		t := lastExec.Time.UTC()
		w.LastExecutedAt = &t
	}
	if watermark > 0 {
		w.LastFiredAt = time.Unix(watermark, 0).UTC()
	}
	return &w, nil
}

func watermarkValue(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (s *sqlStorage) GetWorkflow(ctx context.Context, id string) (*storage.Workflow, error) {
	row := s.queryRow(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = ?", id)
	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *sqlStorage) ListWorkflows(ctx context.Context, f storage.WorkflowFilter) ([]*storage.Workflow, error) {
	query := "SELECT " + workflowColumns + " FROM workflows"
	var args []interface{}
	var where []string

	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, f.TriggerType)
	}
	if f.Search != "" {
		search := "%" + f.Search + "%"
		where = append(where, "(id LIKE ? OR name LIKE ? OR owner LIKE ?)")
		args = append(args, search, search, search)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*storage.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

func (s *sqlStorage) SaveWorkflow(ctx context.Context, w *storage.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	nodesBytes, err := json.Marshal(w.Nodes)
	if err != nil {
		return err
	}
	connsBytes, err := json.Marshal(w.Connections)
	if err != nil {
		return err
	}
	var lastExec interface{}
	if w.LastExecutedAt != nil {
		lastExec = w.LastExecutedAt.UTC()
	}

	// Stats and the cron watermark are never clobbered on update; they move
	// only through RecordWorkflowRun and AdvanceCronWatermark.
	_, err = s.exec(ctx, `INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner = excluded.owner,
			status = excluded.status,
			trigger_type = excluded.trigger_type,
			schedule_cron = excluded.schedule_cron,
			timeout_seconds = excluded.timeout_seconds,
			retry_on_failure = excluded.retry_on_failure,
			max_retries = excluded.max_retries,
			nodes = excluded.nodes,
			connections = excluded.connections,
			updated_at = excluded.updated_at`,
		w.ID, w.Name, w.Owner, w.Status, w.TriggerType, w.ScheduleCron,
		w.TimeoutSeconds, w.RetryOnFailure, w.MaxRetries, string(nodesBytes), string(connsBytes),
		w.TotalRuns, w.SuccessRuns, w.FailedRuns, lastExec,
		w.AvgDurationMS, watermarkValue(w.LastFiredAt), w.CreatedAt, w.UpdatedAt)
	return err
}

func (s *sqlStorage) DeleteWorkflow(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, "DELETE FROM executions WHERE workflow_id = ?", id); err != nil {
		return err
	}
	res, err := s.exec(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *sqlStorage) UpdateWorkflowStatus(ctx context.Context, id, status string) error {
	res, err := s.exec(ctx, "UPDATE workflows SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordWorkflowRun folds one run into the rolling statistics in a single
// statement so concurrent executions never lose updates. The right-hand side
// of a SET clause reads the pre-update values, which makes the running
// average (old_avg * old_successes + d) / (old_successes + 1).
func (s *sqlStorage) RecordWorkflowRun(ctx context.Context, id string, success bool, durationMS float64, at time.Time) error {
	var res sql.Result
	var err error
	if success {
		res, err = s.exec(ctx, `UPDATE workflows SET
			total_runs = total_runs + 1,
			success_runs = success_runs + 1,
			average_duration_ms = (average_duration_ms * success_runs + ?) / (success_runs + 1),
			last_executed_at = ?,
			updated_at = ?
			WHERE id = ?`,
			durationMS, at.UTC(), time.Now().UTC(), id)
	} else {
		res, err = s.exec(ctx, `UPDATE workflows SET
			total_runs = total_runs + 1,
			failed_runs = failed_runs + 1,
			updated_at = ?
			WHERE id = ?`,
			time.Now().UTC(), id)
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AdvanceCronWatermark compare-and-swaps last_fired_at. A false return means
// another poller already moved it past from.
func (s *sqlStorage) AdvanceCronWatermark(ctx context.Context, id string, from, to time.Time) (bool, error) {
	res, err := s.exec(ctx, "UPDATE workflows SET last_fired_at = ? WHERE id = ? AND last_fired_at = ?",
		watermarkValue(to), id, watermarkValue(from))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
