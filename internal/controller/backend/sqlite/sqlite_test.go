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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tombee/runner/internal/controller/backend"
)

// createTestBackend creates a SQLite backend for testing in a temporary directory.
func createTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := Config{
		Path: dbPath,
		WAL:  true,
	}

	be, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	return be, dbPath
}

func TestSQLiteBackend_CreateAndGetRun(t *testing.T) {
	be, _ := createTestBackend(t)
	defer be.Close()

	ctx := context.Background()
	run := &backend.Run{
		ID:         "test-run-1",
		WorkflowID: "test-workflow",
		OrgID:      "org-1",
		Status:     backend.RunPending,
		CreatedAt:  time.Now(),
	}

	if err := be.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	retrieved, err := be.GetRun(ctx, "test-run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if retrieved.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, retrieved.ID)
	}
	if retrieved.Status != run.Status {
		t.Errorf("expected status %s, got %s", run.Status, retrieved.Status)
	}
	if retrieved.OrgID != "org-1" {
		t.Errorf("expected org_id org-1, got %s", retrieved.OrgID)
	}
}

func TestSQLiteBackend_GetRunNotFound(t *testing.T) {
	be, _ := createTestBackend(t)
	defer be.Close()

	_, err := be.GetRun(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("expected error getting missing run, got nil")
	}
}

func TestSQLiteBackend_UpdateRunStatus(t *testing.T) {
	be, _ := createTestBackend(t)
	defer be.Close()

	ctx := context.Background()
	run := &backend.Run{ID: "test-run-2", WorkflowID: "wf", Status: backend.RunPending, CreatedAt: time.Now()}
	if err := be.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	started := time.Now()
	if err := be.UpdateRunStatus(ctx, "test-run-2", backend.RunRunning, &started, nil, ""); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	retrieved, err := be.GetRun(ctx, "test-run-2")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Status != backend.RunRunning {
		t.Errorf("expected status running, got %s", retrieved.Status)
	}
	if retrieved.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}

	finished := time.Now()
	if err := be.UpdateRunStatus(ctx, "test-run-2", backend.RunFailed, nil, &finished, "boom"); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}
	retrieved, err = be.GetRun(ctx, "test-run-2")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Status != backend.RunFailed || retrieved.Error != "boom" {
		t.Errorf("expected failed/boom, got %s/%s", retrieved.Status, retrieved.Error)
	}
}

func TestSQLiteBackend_ListRuns(t *testing.T) {
	be, _ := createTestBackend(t)
	defer be.Close()

	ctx := context.Background()

	runs := []*backend.Run{
		{ID: "run-1", WorkflowID: "wf1", Status: backend.RunRunning, CreatedAt: time.Now()},
		{ID: "run-2", WorkflowID: "wf2", Status: backend.RunCompleted, CreatedAt: time.Now()},
		{ID: "run-3", WorkflowID: "wf1", Status: backend.RunCompleted, CreatedAt: time.Now()},
	}
	for _, run := range runs {
		if err := be.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	all, err := be.ListRuns(ctx, backend.RunFilter{})
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs, got %d", len(all))
	}

	wf1, err := be.ListRuns(ctx, backend.RunFilter{WorkflowID: "wf1"})
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(wf1) != 2 {
		t.Errorf("expected 2 runs for wf1, got %d", len(wf1))
	}

	limited, err := be.ListRuns(ctx, backend.RunFilter{Limit: 2})
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs with limit, got %d", len(limited))
	}
}

func TestSQLiteBackend_StepLifecycle(t *testing.T) {
	be, _ := createTestBackend(t)
	defer be.Close()

	ctx := context.Background()
	run := &backend.Run{ID: "run-steps", WorkflowID: "wf", Status: backend.RunRunning, CreatedAt: time.Now()}
	if err := be.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	step := &backend.StepRun{
		ID:     "step-id-1",
		RunID:  "run-steps",
		NodeID: "nodeA",
		Status: backend.StepQueued,
	}

	upserted, err := be.UpsertStep(ctx, step)
	if err != nil {
		t.Fatalf("failed to upsert step: %v", err)
	}
	if upserted.NodeID != "nodeA" {
		t.Errorf("expected node id nodeA, got %s", upserted.NodeID)
	}

	// Upserting again with the same (run_id, node_id) must return the
	// existing row, not create a duplicate.
	again, err := be.UpsertStep(ctx, &backend.StepRun{ID: "step-id-2", RunID: "run-steps", NodeID: "nodeA", Status: backend.StepQueued})
	if err != nil {
		t.Fatalf("failed to re-upsert step: %v", err)
	}
	if again.ID != "step-id-1" {
		t.Errorf("expected idempotent upsert to return original id step-id-1, got %s", again.ID)
	}

	now := time.Now()
	upserted.Status = backend.StepRunning
	upserted.StartedAt = &now
	upserted.InputJSON = map[string]any{"url": "https://example.com"}
	if err := be.UpdateStep(ctx, upserted); err != nil {
		t.Fatalf("failed to update step: %v", err)
	}

	fetched, err := be.GetStep(ctx, "run-steps", "nodeA")
	if err != nil {
		t.Fatalf("failed to get step: %v", err)
	}
	if fetched.Status != backend.StepRunning {
		t.Errorf("expected status running, got %s", fetched.Status)
	}
	if fetched.InputJSON["url"] != "https://example.com" {
		t.Errorf("expected input_json to round-trip, got %v", fetched.InputJSON)
	}

	if _, err := be.UpsertStep(ctx, &backend.StepRun{ID: "step-id-3", RunID: "run-steps", NodeID: "nodeB", Status: backend.StepQueued}); err != nil {
		t.Fatalf("failed to upsert second step: %v", err)
	}

	steps, err := be.ListSteps(ctx, "run-steps")
	if err != nil {
		t.Fatalf("failed to list steps: %v", err)
	}
	if len(steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(steps))
	}
}

func TestSQLiteBackend_UpdateStepNotFound(t *testing.T) {
	be, _ := createTestBackend(t)
	defer be.Close()

	err := be.UpdateStep(context.Background(), &backend.StepRun{RunID: "missing", NodeID: "nodeA", Status: backend.StepFailed})
	if err == nil {
		t.Fatal("expected error updating missing step, got nil")
	}
}

func TestSQLiteBackend_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "persist.db")

	cfg := Config{Path: dbPath, WAL: true}

	be1, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	ctx := context.Background()
	run := &backend.Run{ID: "persist-run", WorkflowID: "wf", Status: backend.RunCompleted, CreatedAt: time.Now()}
	if err := be1.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if err := be1.Close(); err != nil {
		t.Fatalf("failed to close backend: %v", err)
	}

	be2, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to reopen backend: %v", err)
	}
	defer be2.Close()

	retrieved, err := be2.GetRun(ctx, "persist-run")
	if err != nil {
		t.Fatalf("failed to get persisted run: %v", err)
	}
	if retrieved.ID != "persist-run" {
		t.Errorf("expected ID persist-run, got %s", retrieved.ID)
	}
	if retrieved.Status != backend.RunCompleted {
		t.Errorf("expected status completed, got %s", retrieved.Status)
	}
}
