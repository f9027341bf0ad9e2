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
)

const executionColumns = `id, workflow_id, status, triggered_by, trigger_type,
	started_at, completed_at, duration_ms, input, output, error, trace, node_logs`

func scanExecution(row rowScanner) (*storage.Execution, error) {
	var (
		e           storage.Execution
		triggeredBy sql.NullString
		triggerType sql.NullString
		completedAt sql.NullTime
		inputStr    sql.NullString
		outputStr   sql.NullString
		errStr      sql.NullString
		traceStr    sql.NullString
		logsStr     sql.NullString
	)
	err := row.Scan(&e.ID, &e.WorkflowID, &e.Status, &triggeredBy, &triggerType,
		&e.StartedAt, &completedAt, &e.DurationMS, &inputStr, &outputStr,
		&errStr, &traceStr, &logsStr)
	if err != nil {
		return nil, err
	}
	e.TriggeredBy = triggeredBy.String
	e.TriggerType = triggerType.String
	e.Error = errStr.String
	e.Trace = traceStr.String
	e.StartedAt = e.StartedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		e.CompletedAt = &t
	}
	if inputStr.Valid && inputStr.String != "" {
		if err := json.Unmarshal([]byte(inputStr.String), &e.Input); err != nil {
			return nil, fmt.Errorf("failed to decode input: %w", err)
		}
	}
	if outputStr.Valid && outputStr.String != "" {
		if err := json.Unmarshal([]byte(outputStr.String), &e.Output); err != nil {
			return nil, fmt.Errorf("failed to decode output: %w", err)
		}
	}
	if logsStr.Valid && logsStr.String != "" {
		if err := json.Unmarshal([]byte(logsStr.String), &e.NodeLogs); err != nil {
			return nil, fmt.Errorf("failed to decode node logs: %w", err)
		}
	}
	return &e, nil
}

func (s *sqlStorage) CreateExecution(ctx context.Context, e *storage.Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	inputBytes, err := json.Marshal(e.Input)
	if err != nil {
		return err
	}
	outputBytes, err := json.Marshal(e.Output)
	if err != nil {
		return err
	}
	logsBytes, err := json.Marshal(e.NodeLogs)
	if err != nil {
		return err
	}
	var completedAt interface{}
	if e.CompletedAt != nil {
		completedAt = e.CompletedAt.UTC()
	}
	_, err = s.exec(ctx, `INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkflowID, e.Status, e.TriggeredBy, e.TriggerType,
		e.StartedAt.UTC(), completedAt, e.DurationMS, string(inputBytes), string(outputBytes),
		e.Error, e.Trace, string(logsBytes))
	return err
}

func (s *sqlStorage) UpdateExecution(ctx context.Context, e *storage.Execution) error {
	outputBytes, err := json.Marshal(e.Output)
	if err != nil {
		return err
	}
	logsBytes, err := json.Marshal(e.NodeLogs)
	if err != nil {
		return err
	}
	var completedAt interface{}
	if e.CompletedAt != nil {
		completedAt = e.CompletedAt.UTC()
	}
	res, err := s.exec(ctx, `UPDATE executions SET
		status = ?, completed_at = ?, duration_ms = ?, output = ?, error = ?, trace = ?, node_logs = ?
		WHERE id = ?`,
		e.Status, completedAt, e.DurationMS, string(outputBytes), e.Error, e.Trace, string(logsBytes), e.ID)
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

func (s *sqlStorage) GetExecution(ctx context.Context, id string) (*storage.Execution, error) {
	row := s.queryRow(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = ?", id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *sqlStorage) ListExecutions(ctx context.Context, f storage.ExecutionFilter) ([]*storage.Execution, error) {
	query := "SELECT " + executionColumns + " FROM executions"
	var args []interface{}
	var where []string

	if f.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, f.WorkflowID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, f.TriggerType)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
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

	var executions []*storage.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func (s *sqlStorage) CountExecutionsByTrigger(ctx context.Context, workflowID, triggerType string) (int, error) {
	var count int
	err := s.queryRow(ctx, "SELECT COUNT(*) FROM executions WHERE workflow_id = ? AND trigger_type = ?",
		workflowID, triggerType).Scan(&count)
	return count, err
}

// PruneExecutions deletes the workflow's executions that started before the
// cutoff, except the keep most recent ones which survive regardless of age.
func (s *sqlStorage) PruneExecutions(ctx context.Context, workflowID string, before time.Time, keep int) (int64, error) {
	var res sql.Result
	var err error
	if keep > 0 {
		res, err = s.exec(ctx, `DELETE FROM executions
			WHERE workflow_id = ? AND started_at < ? AND id NOT IN (
				SELECT id FROM executions WHERE workflow_id = ?
				ORDER BY started_at DESC, id LIMIT ?
			)`,
			workflowID, before.UTC(), workflowID, keep)
	} else {
		res, err = s.exec(ctx, "DELETE FROM executions WHERE workflow_id = ? AND started_at < ?",
			workflowID, before.UTC())
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
