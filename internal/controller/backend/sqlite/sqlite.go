// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite backend implementation for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tombee/runner/internal/controller/backend"
	"github.com/tombee/runner/internal/controller/metrics"
	runnererrors "github.com/tombee/runner/pkg/errors"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertions.
var (
	_ backend.RunStore  = (*Backend)(nil)
	_ backend.StepStore = (*Backend)(nil)
	_ backend.Backend   = (*Backend)(nil)
)

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite backend.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &runnererrors.ConfigError{Key: "path", Reason: "failed to open database", Cause: err}
	}

	// SQLite serializes writes, so only 1 connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &runnererrors.ConfigError{Key: "path", Reason: "failed to connect to database", Cause: err}
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

// configurePragmas sets SQLite configuration options.
func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			org_id TEXT,
			status TEXT NOT NULL,
			error TEXT,
			triggered_by TEXT,
			started_at TEXT,
			finished_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow_id ON runs(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS step_runs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			org_id TEXT,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			input_json TEXT,
			output_json TEXT,
			error TEXT,
			UNIQUE(run_id, node_id),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_step_runs_run_id ON step_runs(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// CreateRun persists a new pending run.
func (b *Backend) CreateRun(ctx context.Context, run *backend.Run) error {
	query := `
		INSERT INTO runs (id, workflow_id, org_id, status, error, triggered_by, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := b.db.ExecContext(ctx, query,
		run.ID, run.WorkflowID, nullString(run.OrgID), run.Status, nullString(run.Error), nullString(run.TriggeredBy),
		formatTime(run.StartedAt), formatTime(run.FinishedAt), run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		metrics.RecordPersistenceError("CreateRun", classifyError(err))
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*backend.Run, error) {
	query := `
		SELECT id, workflow_id, org_id, status, error, triggered_by, started_at, finished_at, created_at
		FROM runs WHERE id = ?
	`
	var run backend.Run
	var orgID, errMsg, triggeredBy sql.NullString
	var startedAt, finishedAt, createdAt sql.NullString

	err := b.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.WorkflowID, &orgID, &run.Status, &errMsg, &triggeredBy,
		&startedAt, &finishedAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, &runnererrors.NotFoundError{Resource: "run", ID: id}
	}
	if err != nil {
		metrics.RecordPersistenceError("GetRun", classifyError(err))
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	hydrateRun(&run, orgID, errMsg, triggeredBy, startedAt, finishedAt, createdAt)
	return &run, nil
}

// ListRuns lists runs ordered by created_at desc, with optional filters.
func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*backend.Run, error) {
	query := `
		SELECT id, workflow_id, org_id, status, error, triggered_by, started_at, finished_at, created_at
		FROM runs WHERE 1=1
	`
	args := []any{}

	if filter.WorkflowID != "" {
		query += " AND workflow_id = ?"
		args = append(args, filter.WorkflowID)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordPersistenceError("ListRuns", classifyError(err))
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*backend.Run
	for rows.Next() {
		var run backend.Run
		var orgID, errMsg, triggeredBy sql.NullString
		var startedAt, finishedAt, createdAt sql.NullString

		if err := rows.Scan(
			&run.ID, &run.WorkflowID, &orgID, &run.Status, &errMsg, &triggeredBy,
			&startedAt, &finishedAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		hydrateRun(&run, orgID, errMsg, triggeredBy, startedAt, finishedAt, createdAt)
		runs = append(runs, &run)
	}

	return runs, nil
}

// UpdateRunStatus transitions a run's status and timestamps/error in one
// write.
func (b *Backend) UpdateRunStatus(ctx context.Context, id, status string, startedAt, finishedAt *time.Time, errMsg string) error {
	current, err := b.GetRun(ctx, id)
	if err != nil {
		return err
	}

	newStarted := current.StartedAt
	if startedAt != nil {
		newStarted = startedAt
	}
	newFinished := current.FinishedAt
	if finishedAt != nil {
		newFinished = finishedAt
	}
	newErr := current.Error
	if errMsg != "" {
		newErr = errMsg
	}

	query := `UPDATE runs SET status = ?, started_at = ?, finished_at = ?, error = ? WHERE id = ?`
	result, err := b.db.ExecContext(ctx, query, status, formatTime(newStarted), formatTime(newFinished), nullString(newErr), id)
	if err != nil {
		metrics.RecordPersistenceError("UpdateRunStatus", classifyError(err))
		return fmt.Errorf("failed to update run status: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &runnererrors.NotFoundError{Resource: "run", ID: id}
	}
	return nil
}

// UpsertStep returns the existing (run_id, node_id) row if present,
// otherwise inserts a new one. It inserts with "ON CONFLICT(run_id,
// node_id) DO NOTHING" and, when no row was inserted, reads the existing
// row back with GetStep, so two concurrent dispatches of the same node
// never fail on the UNIQUE(run_id, node_id) constraint.
func (b *Backend) UpsertStep(ctx context.Context, step *backend.StepRun) (*backend.StepRun, error) {
	inputJSON, outputJSON, err := marshalStepJSON(step)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO step_runs (id, run_id, org_id, node_id, status, started_at, finished_at, input_json, output_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, node_id) DO NOTHING
	`
	result, err := b.db.ExecContext(ctx, query,
		step.ID, step.RunID, nullString(step.OrgID), step.NodeID, step.Status,
		formatTime(step.StartedAt), formatTime(step.FinishedAt), string(inputJSON), string(outputJSON), nullString(step.Error),
	)
	if err != nil {
		metrics.RecordPersistenceError("UpsertStep", classifyError(err))
		return nil, fmt.Errorf("failed to upsert step: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// A row already existed under the unique constraint; fetch it.
		return b.GetStep(ctx, step.RunID, step.NodeID)
	}

	cp := *step
	return &cp, nil
}

// GetStep retrieves a step by run ID and node ID.
func (b *Backend) GetStep(ctx context.Context, runID, nodeID string) (*backend.StepRun, error) {
	query := `
		SELECT id, run_id, org_id, node_id, status, started_at, finished_at, input_json, output_json, error
		FROM step_runs WHERE run_id = ? AND node_id = ?
	`
	var step backend.StepRun
	var orgID, errMsg sql.NullString
	var startedAt, finishedAt sql.NullString
	var inJSON, outJSON sql.NullString

	err := b.db.QueryRowContext(ctx, query, runID, nodeID).Scan(
		&step.ID, &step.RunID, &orgID, &step.NodeID, &step.Status,
		&startedAt, &finishedAt, &inJSON, &outJSON, &errMsg,
	)
	if err == sql.ErrNoRows {
		return nil, &runnererrors.NotFoundError{Resource: "step", ID: nodeID}
	}
	if err != nil {
		metrics.RecordPersistenceError("GetStep", classifyError(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	hydrateStep(&step, orgID, errMsg, startedAt, finishedAt, inJSON, outJSON)
	return &step, nil
}

// ListSteps lists steps for a run ordered by started_at (nulls last).
func (b *Backend) ListSteps(ctx context.Context, runID string) ([]*backend.StepRun, error) {
	query := `
		SELECT id, run_id, org_id, node_id, status, started_at, finished_at, input_json, output_json, error
		FROM step_runs WHERE run_id = ?
		ORDER BY (started_at IS NULL), started_at ASC
	`
	rows, err := b.db.QueryContext(ctx, query, runID)
	if err != nil {
		metrics.RecordPersistenceError("ListSteps", classifyError(err))
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*backend.StepRun
	for rows.Next() {
		var step backend.StepRun
		var orgID, errMsg sql.NullString
		var startedAt, finishedAt sql.NullString
		var inJSON, outJSON sql.NullString

		if err := rows.Scan(
			&step.ID, &step.RunID, &orgID, &step.NodeID, &step.Status,
			&startedAt, &finishedAt, &inJSON, &outJSON, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		hydrateStep(&step, orgID, errMsg, startedAt, finishedAt, inJSON, outJSON)
		steps = append(steps, &step)
	}

	return steps, nil
}

// UpdateStep persists a step's status, timestamps, input/output and error.
func (b *Backend) UpdateStep(ctx context.Context, step *backend.StepRun) error {
	inputJSON, outputJSON, err := marshalStepJSON(step)
	if err != nil {
		return err
	}

	query := `
		UPDATE step_runs SET
			status = ?, started_at = ?, finished_at = ?, input_json = ?, output_json = ?, error = ?
		WHERE run_id = ? AND node_id = ?
	`
	result, err := b.db.ExecContext(ctx, query,
		step.Status, formatTime(step.StartedAt), formatTime(step.FinishedAt),
		string(inputJSON), string(outputJSON), nullString(step.Error),
		step.RunID, step.NodeID,
	)
	if err != nil {
		metrics.RecordPersistenceError("UpdateStep", classifyError(err))
		return fmt.Errorf("failed to update step: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &runnererrors.NotFoundError{Resource: "step", ID: step.NodeID}
	}
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

func hydrateRun(run *backend.Run, orgID, errMsg, triggeredBy, startedAt, finishedAt, createdAt sql.NullString) {
	run.OrgID = orgID.String
	run.Error = errMsg.String
	run.TriggeredBy = triggeredBy.String

	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		run.FinishedAt = &t
	}
	if createdAt.Valid {
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}
}

func hydrateStep(step *backend.StepRun, orgID, errMsg, startedAt, finishedAt, inJSON, outJSON sql.NullString) {
	step.OrgID = orgID.String
	step.Error = errMsg.String

	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		step.StartedAt = &t
	}
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		step.FinishedAt = &t
	}
	if inJSON.Valid && inJSON.String != "" {
		json.Unmarshal([]byte(inJSON.String), &step.InputJSON)
	}
	if outJSON.Valid && outJSON.String != "" {
		json.Unmarshal([]byte(outJSON.String), &step.OutputJSON)
	}
}

func marshalStepJSON(step *backend.StepRun) ([]byte, []byte, error) {
	inputJSON, err := json.Marshal(step.InputJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal input_json: %w", err)
	}
	outputJSON, err := json.Marshal(step.OutputJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal output_json: %w", err)
	}
	return inputJSON, outputJSON, nil
}

// formatTime converts a *time.Time to RFC3339 string or nil.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// nullString returns nil if string is empty, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// classifyError maps a driver error to a coarse label for the
// conductor_persistence_errors_total metric.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, sql.ErrConnDone):
		return "connection_closed"
	default:
		return "query_error"
	}
}
