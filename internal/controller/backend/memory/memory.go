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

// Package memory provides an in-memory backend implementation, useful for
// tests and single-process development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tombee/runner/internal/controller/backend"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

// Compile-time interface assertions.
var (
	_ backend.RunStore  = (*Backend)(nil)
	_ backend.StepStore = (*Backend)(nil)
	_ backend.Backend   = (*Backend)(nil)
)

type stepKey struct {
	runID  string
	nodeID string
}

// Backend is an in-memory storage backend, guarded by a single RWMutex.
type Backend struct {
	mu    sync.RWMutex
	runs  map[string]*backend.Run
	steps map[stepKey]*backend.StepRun
	// order preserves step insertion order within a run, for stable listing.
	order map[string][]stepKey
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{
		runs:  make(map[string]*backend.Run),
		steps: make(map[stepKey]*backend.StepRun),
		order: make(map[string][]stepKey),
	}
}

// CreateRun persists a new pending run.
func (b *Backend) CreateRun(ctx context.Context, run *backend.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *run
	b.runs[run.ID] = &cp
	return nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*backend.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, exists := b.runs[id]
	if !exists {
		return nil, &runnererrors.NotFoundError{Resource: "run", ID: id}
	}
	cp := *run
	return &cp, nil
}

// ListRuns lists runs ordered by created_at desc, optionally filtered by
// workflow ID and capped by Limit.
func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*backend.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*backend.Run
	for _, run := range b.runs {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateRunStatus transitions a run's status and timestamps/error in one
// write.
func (b *Backend) UpdateRunStatus(ctx context.Context, id, status string, startedAt, finishedAt *time.Time, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, exists := b.runs[id]
	if !exists {
		return &runnererrors.NotFoundError{Resource: "run", ID: id}
	}

	run.Status = status
	if startedAt != nil {
		run.StartedAt = startedAt
	}
	if finishedAt != nil {
		run.FinishedAt = finishedAt
	}
	if errMsg != "" {
		run.Error = errMsg
	}
	return nil
}

// UpsertStep returns the existing (run_id, node_id) row if present,
// otherwise inserts a new one.
func (b *Backend) UpsertStep(ctx context.Context, step *backend.StepRun) (*backend.StepRun, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := stepKey{runID: step.RunID, nodeID: step.NodeID}
	if existing, ok := b.steps[key]; ok {
		cp := *existing
		return &cp, nil
	}

	cp := *step
	b.steps[key] = &cp
	b.order[step.RunID] = append(b.order[step.RunID], key)

	out := cp
	return &out, nil
}

// GetStep retrieves a step by run ID and node ID.
func (b *Backend) GetStep(ctx context.Context, runID, nodeID string) (*backend.StepRun, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	step, exists := b.steps[stepKey{runID: runID, nodeID: nodeID}]
	if !exists {
		return nil, &runnererrors.NotFoundError{Resource: "step", ID: nodeID}
	}
	cp := *step
	return &cp, nil
}

// ListSteps lists steps for a run ordered by started_at (nulls last),
// matching the sqlite and postgres backends. Steps that started at the
// same instant (or have not yet started) fall back to insertion order.
func (b *Backend) ListSteps(ctx context.Context, runID string) ([]*backend.StepRun, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := b.order[runID]
	result := make([]*backend.StepRun, 0, len(keys))
	for _, k := range keys {
		if s, ok := b.steps[k]; ok {
			cp := *s
			result = append(result, &cp)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		si, sj := result[i].StartedAt, result[j].StartedAt
		if si == nil && sj == nil {
			return false
		}
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return si.Before(*sj)
	})

	return result, nil
}

// UpdateStep persists a step's status, timestamps, input/output and error.
func (b *Backend) UpdateStep(ctx context.Context, step *backend.StepRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := stepKey{runID: step.RunID, nodeID: step.NodeID}
	if _, exists := b.steps[key]; !exists {
		return &runnererrors.NotFoundError{Resource: "step", ID: step.NodeID}
	}

	cp := *step
	b.steps[key] = &cp
	return nil
}

// Close is a no-op for the in-memory backend.
func (b *Backend) Close() error {
	return nil
}

// RunCount returns the number of runs currently held in memory, for the
// conductor_runs_in_memory gauge.
func (b *Backend) RunCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.runs)
}
