package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lucasnoah/rootcause/internal/pipeline"
)

// Run represents a row in the runs table.
type Run struct {
	RunID         string
	Repo          string
	Phase         string
	FinishReason  string
	ErrorMessage  string
	ErrorType     string
	Category      string
	Severity      string
	ErrorCount    int
	WorkflowRunID int64
	StartedAt     time.Time
	CompletedAt   time.Time
}

// StageAttempt represents a row in the stage_attempts table.
type StageAttempt struct {
	ID         int64
	RunID      string
	Stage      string
	Attempt    int
	Succeeded  bool
	Duration   time.Duration
	Error      string
	Message    string
	RecordedAt time.Time
}

// StageStats aggregates attempts of one stage.
type StageStats struct {
	Stage       string
	Attempts    int
	Failures    int
	AvgDuration time.Duration
}

// Stats summarises the whole history.
type Stats struct {
	TotalRuns int
	ByOutcome map[string]int
	Stages    []StageStats
}

// OutcomeInProgress labels runs that have not finished.
const OutcomeInProgress = "in_progress"

// UpsertRun inserts a run or updates its mutable columns.
func (d *DB) UpsertRun(r Run) error {
	_, err := d.exec(
		`INSERT INTO runs (run_id, repo, phase, finish_reason, error_message, error_type, category, severity, error_count, workflow_run_id, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET
		   phase = excluded.phase,
		   finish_reason = excluded.finish_reason,
		   error_message = excluded.error_message,
		   error_type = excluded.error_type,
		   category = excluded.category,
		   severity = excluded.severity,
		   error_count = excluded.error_count,
		   workflow_run_id = excluded.workflow_run_id,
		   completed_at = excluded.completed_at`,
		r.RunID, r.Repo, r.Phase, r.FinishReason, r.ErrorMessage, r.ErrorType, r.Category, r.Severity,
		r.ErrorCount, r.WorkflowRunID, formatTime(r.StartedAt), formatTime(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", r.RunID, err)
	}
	return nil
}

// GetRun returns a run by ID, or nil if it does not exist.
func (d *DB) GetRun(runID string) (*Run, error) {
	row := d.queryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns runs newest first. An empty repo lists every repo; a
// non-positive limit lists all.
func (d *DB) ListRuns(repo string, limit int) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if repo != "" {
		q += ` WHERE repo = ?`
		args = append(args, repo)
	}
	q += ` ORDER BY started_at DESC, run_id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// HasAnalyzedWorkflowRun reports whether a completed run of repo already
// analyzed the given workflow run.
func (d *DB) HasAnalyzedWorkflowRun(repo string, workflowRunID int64) (bool, error) {
	var n int
	err := d.queryRow(
		`SELECT COUNT(*) FROM runs WHERE repo = ? AND workflow_run_id = ? AND finish_reason = ?`,
		repo, workflowRunID, string(pipeline.FinishCompleted),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check workflow run %d: %w", workflowRunID, err)
	}
	return n > 0, nil
}

// DeleteRun removes a run and its attempts and messages.
func (d *DB) DeleteRun(runID string) error {
	for _, q := range []string{
		`DELETE FROM run_messages WHERE run_id = ?`,
		`DELETE FROM stage_attempts WHERE run_id = ?`,
		`DELETE FROM runs WHERE run_id = ?`,
	} {
		if _, err := d.exec(q, runID); err != nil {
			return fmt.Errorf("delete run %s: %w", runID, err)
		}
	}
	return nil
}

const runColumns = `run_id, repo, phase, finish_reason, error_message, error_type, category, severity, error_count, workflow_run_id, started_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var started, completed string
	if err := s.Scan(&r.RunID, &r.Repo, &r.Phase, &r.FinishReason, &r.ErrorMessage, &r.ErrorType,
		&r.Category, &r.Severity, &r.ErrorCount, &r.WorkflowRunID, &started, &completed); err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(started)
	r.CompletedAt = parseTime(completed)
	return &r, nil
}

// LogStageAttempt records one finished stage attempt.
func (d *DB) LogStageAttempt(a StageAttempt) error {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now()
	}
	_, err := d.exec(
		`INSERT INTO stage_attempts (run_id, stage, attempt, succeeded, duration_ms, error, message, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Stage, a.Attempt, a.Succeeded, a.Duration.Milliseconds(), a.Error, a.Message, formatTime(a.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("log stage attempt: %w", err)
	}
	return nil
}

// GetStageAttempts returns the attempts of a run in the order recorded.
func (d *DB) GetStageAttempts(runID string) ([]StageAttempt, error) {
	rows, err := d.query(
		`SELECT id, run_id, stage, attempt, succeeded, duration_ms, error, message, recorded_at
		 FROM stage_attempts WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage attempts: %w", err)
	}
	defer rows.Close()

	var out []StageAttempt
	for rows.Next() {
		var a StageAttempt
		var ms int64
		var recorded string
		if err := rows.Scan(&a.ID, &a.RunID, &a.Stage, &a.Attempt, &a.Succeeded, &ms, &a.Error, &a.Message, &recorded); err != nil {
			return nil, fmt.Errorf("scan stage attempt: %w", err)
		}
		a.Duration = time.Duration(ms) * time.Millisecond
		a.RecordedAt = parseTime(recorded)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceMessages stores the full audit trail of a run.
func (d *DB) ReplaceMessages(runID string, messages []string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(d.rebind(`DELETE FROM run_messages WHERE run_id = ?`), runID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	insert := d.rebind(`INSERT INTO run_messages (run_id, seq, message) VALUES (?, ?, ?)`)
	for i, m := range messages {
		if _, err := tx.Exec(insert, runID, i, m); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetMessages returns the audit trail of a run.
func (d *DB) GetMessages(runID string) ([]string, error) {
	rows, err := d.query(`SELECT message FROM run_messages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Stats aggregates run outcomes and per-stage attempt counts.
func (d *DB) Stats() (*Stats, error) {
	st := &Stats{ByOutcome: map[string]int{}}

	rows, err := d.query(`SELECT finish_reason, COUNT(*) FROM runs GROUP BY finish_reason`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if reason == "" {
			reason = OutcomeInProgress
		}
		st.ByOutcome[reason] += n
		st.TotalRuns += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = d.query(
		`SELECT stage, COUNT(*),
		        SUM(CASE WHEN succeeded THEN 0 ELSE 1 END),
		        CAST(AVG(duration_ms) AS DOUBLE PRECISION)
		 FROM stage_attempts GROUP BY stage ORDER BY stage`,
	)
	if err != nil {
		return nil, fmt.Errorf("stage stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s StageStats
		var avg float64
		if err := rows.Scan(&s.Stage, &s.Attempts, &s.Failures, &avg); err != nil {
			return nil, fmt.Errorf("scan stage stats: %w", err)
		}
		s.AvgDuration = time.Duration(avg * float64(time.Millisecond))
		st.Stages = append(st.Stages, s)
	}
	return st, rows.Err()
}
