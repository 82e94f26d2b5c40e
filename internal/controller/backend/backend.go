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

// Package backend provides durable storage for runs and step runs.
//
// # Interface Hierarchy
//
// The backend package uses interface segregation to allow minimal implementations:
//
//   - RunStore (core, required): create/get/update/list runs.
//   - StepStore (core, required): upsert/get/list/update step runs.
//   - io.Closer (optional): Close.
//
// The Backend interface composes both plus io.Closer for full-featured
// implementations. Components that only need run bookkeeping can accept
// RunStore; the orchestrator accepts the full Backend.
package backend

import (
	"context"
	"io"
	"time"
)

// Run statuses, per the monotonic state machine:
// pending -> running -> {completed, failed, cancelled}.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// StepRun statuses.
const (
	StepQueued    = "queued"
	StepRunning   = "running"
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// Run represents one execution attempt of a workflow.
type Run struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	OrgID       string     `json:"org_id,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	TriggeredBy string     `json:"triggered_by,omitempty"`
}

// StepRun represents one attempt at one node within a run.
type StepRun struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	OrgID      string         `json:"org_id,omitempty"`
	NodeID     string         `json:"node_id"`
	Status     string         `json:"status"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	InputJSON  map[string]any `json:"input_json,omitempty"`
	OutputJSON map[string]any `json:"output_json,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// RunFilter contains filtering options for listing runs.
type RunFilter struct {
	WorkflowID string
	Limit      int
}

// RunStore is the core interface for run storage operations.
type RunStore interface {
	// CreateRun persists a new pending run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID. Returns *errors.NotFoundError when absent.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns lists runs ordered by created_at desc.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// UpdateRunStatus transitions a run's status and updates its timestamps
	// and error message in one durable write.
	UpdateRunStatus(ctx context.Context, id, status string, startedAt, finishedAt *time.Time, errMsg string) error
}

// StepStore is the core interface for step-run storage operations.
type StepStore interface {
	// UpsertStep returns the existing row for (run_id, node_id) when
	// present, otherwise inserts a new queued row. This enforces the
	// (run_id, node_id) uniqueness invariant that makes step execution
	// idempotent across resumed runs.
	UpsertStep(ctx context.Context, step *StepRun) (*StepRun, error)

	// GetStep retrieves a step by run ID and node ID.
	GetStep(ctx context.Context, runID, nodeID string) (*StepRun, error)

	// ListSteps lists steps for a run ordered by started_at (nulls last).
	ListSteps(ctx context.Context, runID string) ([]*StepRun, error)

	// UpdateStep persists a step's status, timestamps, input/output and
	// error fields.
	UpdateStep(ctx context.Context, step *StepRun) error
}

// Backend composes RunStore and StepStore for full-featured orchestration,
// plus io.Closer for lifecycle management.
type Backend interface {
	RunStore
	StepStore
	io.Closer
}
