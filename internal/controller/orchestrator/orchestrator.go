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

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/runner/internal/controller/backend"
	"github.com/tombee/runner/internal/controller/bus"
	"github.com/tombee/runner/internal/controller/planner"
	runnerlog "github.com/tombee/runner/internal/log"
	"github.com/tombee/runner/internal/operation"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

// Orchestrator drives runs end to end: plan, ready-queue step loop,
// executor dispatch, persistence, and event publication.
type Orchestrator struct {
	backend  backend.Backend
	registry *operation.Registry
	bus      *bus.Bus
	fetcher  GraphFetcher

	logger *slog.Logger
	tracer trace.Tracer

	semaphore chan struct{}
	draining  atomic.Bool
	wg        sync.WaitGroup
}

// New creates an Orchestrator wired to the given backend, executor
// registry, event bus, and workflow graph fetcher.
func New(be backend.Backend, registry *operation.Registry, eventBus *bus.Bus, fetcher GraphFetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   be,
		registry:  registry,
		bus:       eventBus,
		fetcher:   fetcher,
		logger:    slog.Default(),
		semaphore: make(chan struct{}, 10),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit dispatches runID to the worker pool. It returns immediately;
// the run executes in a tracked background goroutine bounded by the
// orchestrator's semaphore. Intended to be called by the job queue
// worker that picked up the run-id task — see spec.md §4.5.
func (o *Orchestrator) Submit(runID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		o.semaphore <- struct{}{}
		defer func() { <-o.semaphore }()

		if err := o.Run(context.Background(), runID); err != nil {
			o.logger.Error("run failed", "run_id", runID, "error", err)
		}
	}()
}

// StartDraining marks the orchestrator as draining. Submit does not check
// the flag, so runs submitted afterwards still execute; the intake handler
// reads IsDraining and refuses new runs.
func (o *Orchestrator) StartDraining() { o.draining.Store(true) }

// IsDraining reports whether the orchestrator is shutting down.
func (o *Orchestrator) IsDraining() bool { return o.draining.Load() }

// Wait blocks until all in-flight runs started via Submit have returned,
// or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the full orchestration algorithm for runID, synchronously.
// It is idempotent: calling it again for a run already completed is a
// no-op, and calling it for a run left running by a crashed worker
// resumes rather than restarts it.
func (o *Orchestrator) Run(ctx context.Context, runID string) error {
	run, err := o.backend.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	logger := runnerlog.WithRunContext(o.logger, run.ID, run.WorkflowID)

	switch run.Status {
	case backend.RunCompleted, backend.RunFailed, backend.RunCancelled:
		logger.Info("run already terminal, nothing to do", "status", run.Status)
		return nil
	}

	resuming := run.Status != backend.RunPending
	if resuming {
		logger.Info("resuming in-progress run")
	} else {
		now := time.Now().UTC()
		run.Status = backend.RunRunning
		run.StartedAt = &now
		if err := o.backend.UpdateRunStatus(ctx, run.ID, backend.RunRunning, &now, nil, ""); err != nil {
			return fmt.Errorf("transition run %s to running: %w", run.ID, err)
		}
		o.bus.PublishRunStarted(run.ID, now.Format(time.RFC3339))
	}

	graph, err := o.fetcher.FetchGraph(ctx, run.WorkflowID)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("fetch workflow graph: %w", err))
	}
	if len(graph.Nodes) == 0 {
		return o.fail(ctx, run, &runnererrors.EmptyWorkflowError{WorkflowID: run.WorkflowID})
	}

	plan, err := planner.New(run.WorkflowID, graph)
	if err != nil {
		return o.fail(ctx, run, err)
	}

	existing, err := o.backend.ListSteps(ctx, run.ID)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("list existing steps: %w", err))
	}

	executed := make(map[string]bool)
	outputs := make(map[string]map[string]any)
	queue := append([]string(nil), plan.Triggers()...)

	for _, step := range existing {
		switch step.Status {
		case backend.StepSucceeded:
			executed[step.NodeID] = true
			outputs[step.NodeID] = step.OutputJSON
			queue = append(queue, plan.Successors(step.NodeID)...)
		case backend.StepRunning:
			// In-doubt: a previous worker died mid-dispatch. Re-run it.
			logger.Warn("retrying in-doubt step left running by a previous worker", "node_id", step.NodeID)
		}
	}
	queue = dedupeQueue(queue, executed)

	for len(queue) > 0 {
		var ready []string
		var blocked []string
		for _, nodeID := range queue {
			if executed[nodeID] {
				continue
			}
			if _, ok := plan.Node(nodeID); !ok {
				continue
			}
			depsReady := true
			for _, dep := range plan.Deps(nodeID) {
				if !executed[dep] {
					depsReady = false
					break
				}
			}
			if depsReady {
				ready = append(ready, nodeID)
			} else {
				blocked = append(blocked, nodeID)
			}
		}
		if len(ready) == 0 {
			break
		}

		// Independent nodes in the same ready wave carry no data
		// dependency on one another by construction (their deps are
		// all already executed), so they dispatch concurrently; a
		// failure in any one cancels the rest of the wave via gctx.
		g, gctx := errgroup.WithContext(ctx)
		results := make([]stepResult, len(ready))
		for i, nodeID := range ready {
			i, nodeID := i, nodeID
			node, _ := plan.Node(nodeID)
			input := mergeDepOutputs(plan.Deps(nodeID), outputs)
			g.Go(func() error {
				output, err := o.runStep(gctx, run, logger, node, nodeID, input)
				results[i] = stepResult{nodeID: nodeID, output: output, err: err}
				return err
			})
		}
		waitErr := g.Wait()

		queue = blocked
		for _, r := range results {
			if r.err != nil {
				continue
			}
			executed[r.nodeID] = true
			outputs[r.nodeID] = r.output
			queue = append(queue, plan.Successors(r.nodeID)...)
		}
		queue = dedupeQueue(queue, executed)

		if waitErr != nil {
			return o.fail(ctx, run, waitErr)
		}
	}

	if len(executed) != len(plan.NodeIDs()) {
		return o.fail(ctx, run, fmt.Errorf("ready queue drained before all %d nodes executed (%d completed)", len(plan.NodeIDs()), len(executed)))
	}

	now := time.Now().UTC()
	if err := o.backend.UpdateRunStatus(ctx, run.ID, backend.RunCompleted, run.StartedAt, &now, ""); err != nil {
		return fmt.Errorf("transition run %s to completed: %w", run.ID, err)
	}
	o.bus.PublishRunFinished(run.ID, backend.RunCompleted, "", now.Format(time.RFC3339))
	runsTotal.WithLabelValues(backend.RunCompleted).Inc()
	return nil
}

// stepResult carries one node's outcome out of a concurrently-dispatched
// ready wave back to the sequential merge step in Run.
type stepResult struct {
	nodeID string
	output map[string]any
	err    error
}

// runStep upserts, runs, and persists a single node, publishing the
// step_started/step_succeeded/step_failed events around it. It is safe to
// call concurrently for distinct nodeIDs of the same run: each node owns
// its own StepRun row.
func (o *Orchestrator) runStep(ctx context.Context, run *backend.Run, logger *slog.Logger, node planner.Node, nodeID string, input map[string]any) (map[string]any, error) {
	step, err := o.backend.UpsertStep(ctx, &backend.StepRun{
		ID:     uuid.New().String(),
		RunID:  run.ID,
		OrgID:  run.OrgID,
		NodeID: nodeID,
		Status: backend.StepQueued,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert step %s: %w", nodeID, err)
	}
	if step.Status == backend.StepSucceeded {
		return step.OutputJSON, nil
	}

	step.InputJSON = input
	startedAt := time.Now().UTC()
	step.Status = backend.StepRunning
	step.StartedAt = &startedAt
	if err := o.backend.UpdateStep(ctx, step); err != nil {
		return nil, fmt.Errorf("persist step %s input: %w", nodeID, err)
	}
	o.bus.PublishStepStarted(run.ID, step.ID, nodeID, node.Type)

	output, execErr := o.dispatch(ctx, run, node, input)

	finishedAt := time.Now().UTC()
	step.FinishedAt = &finishedAt

	if execErr != nil {
		step.Status = backend.StepFailed
		step.Error = execErr.Error()
		if err := o.backend.UpdateStep(ctx, step); err != nil {
			logger.Error("failed to persist step failure", "node_id", nodeID, "error", err)
		}
		o.bus.PublishStepFailed(run.ID, step.ID, nodeID, execErr.Error())
		return nil, fmt.Errorf("step %s: %w", nodeID, execErr)
	}

	storable := toStorable(output)
	step.OutputJSON = storable
	step.Status = backend.StepSucceeded
	if err := o.backend.UpdateStep(ctx, step); err != nil {
		return nil, fmt.Errorf("persist step %s output: %w", nodeID, err)
	}
	o.bus.PublishStepSucceeded(run.ID, step.ID, nodeID, output)

	return storable, nil
}

// dispatch looks up node.Type's executor and runs it, recording a trace
// span and a duration metric around the call.
func (o *Orchestrator) dispatch(ctx context.Context, run *backend.Run, node planner.Node, input map[string]any) (any, error) {
	start := time.Now()

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.Start(ctx, "orchestrator.step",
			trace.WithAttributes(
				attribute.String("run.id", run.ID),
				attribute.String("node.id", node.ID),
				attribute.String("node.type", node.Type),
			),
		)
		defer span.End()

		output, err := o.registry.Execute(ctx, node.Type, node.Properties, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			stepDuration.WithLabelValues(node.Type, backend.StepFailed).Observe(time.Since(start).Seconds())
			return nil, err
		}
		stepDuration.WithLabelValues(node.Type, backend.StepSucceeded).Observe(time.Since(start).Seconds())
		return output, nil
	}

	output, err := o.registry.Execute(ctx, node.Type, node.Properties, input)
	if err != nil {
		stepDuration.WithLabelValues(node.Type, backend.StepFailed).Observe(time.Since(start).Seconds())
		return nil, err
	}
	stepDuration.WithLabelValues(node.Type, backend.StepSucceeded).Observe(time.Since(start).Seconds())
	return output, nil
}

// fail transitions run to failed and emits run_finished, returning the
// original error to the caller.
func (o *Orchestrator) fail(ctx context.Context, run *backend.Run, cause error) error {
	now := time.Now().UTC()
	if err := o.backend.UpdateRunStatus(ctx, run.ID, backend.RunFailed, run.StartedAt, &now, cause.Error()); err != nil {
		o.logger.Error("failed to persist run failure", "run_id", run.ID, "error", err)
	}
	o.bus.PublishRunFinished(run.ID, backend.RunFailed, cause.Error(), now.Format(time.RFC3339))
	runsTotal.WithLabelValues(backend.RunFailed).Inc()
	return cause
}

// toStorable normalizes an executor's output into the map[string]any
// shape StepRun.OutputJSON persists. Map outputs pass through unchanged;
// any other value (a bare scalar, a slice) is wrapped under "value" so
// downstream dep-merging and persistence always see a map.
func toStorable(output any) map[string]any {
	if m, ok := output.(map[string]any); ok {
		return m
	}
	if output == nil {
		return nil
	}
	return map[string]any{"value": output}
}

// mergeDepOutputs computes a node's input per spec.md §4.5's edge
// policy: nil for a trigger node, the dep's output unchanged for a
// single dependency, or a shallow merge (later deps overwrite earlier
// ones) for multiple dependencies. deps is assumed already sorted
// lexicographically by the planner, which is the tie-break rule.
func mergeDepOutputs(deps []string, outputs map[string]map[string]any) map[string]any {
	if len(deps) == 0 {
		return nil
	}
	if len(deps) == 1 {
		return outputs[deps[0]]
	}
	merged := make(map[string]any)
	for _, dep := range deps {
		for k, v := range outputs[dep] {
			merged[k] = v
		}
	}
	return merged
}

// dedupeQueue removes already-executed and duplicate entries from queue,
// preserving first-seen order.
func dedupeQueue(queue []string, executed map[string]bool) []string {
	seen := make(map[string]bool, len(queue))
	out := make([]string, 0, len(queue))
	for _, id := range queue {
		if executed[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
