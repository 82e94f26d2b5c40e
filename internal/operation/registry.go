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

// Package operation implements the node executor registry: a process-wide
// table mapping workflow node types to the code that runs them.
package operation

import (
	"context"
	"sync"

	runnererrors "github.com/tombee/runner/pkg/errors"
)

// Executor runs a single workflow node given its static config and the
// input produced by upstream nodes, and returns the node's output. Output
// is usually a map but may be any JSON-representable value (e.g. the
// transform executor can resolve a dotted path to a scalar).
type Executor interface {
	Execute(ctx context.Context, config map[string]any, input map[string]any) (any, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, config map[string]any, input map[string]any) (any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, config map[string]any, input map[string]any) (any, error) {
	return f(ctx, config, input)
}

// Registry is a process-wide mutable table of executors keyed by node type.
// It may be added to at startup (via Register) but must be treated as
// read-only once the orchestrator begins executing runs.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds or replaces the executor for a node type.
func (r *Registry) Register(nodeType string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = executor
}

// Get returns the executor registered for a node type.
func (r *Registry) Get(nodeType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[nodeType]
	return e, ok
}

// List returns the registered node types.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}

// Execute looks up the executor for nodeType and runs it. Returns
// ExecutorMissingError if no executor is registered.
func (r *Registry) Execute(ctx context.Context, nodeType string, config map[string]any, input map[string]any) (any, error) {
	executor, ok := r.Get(nodeType)
	if !ok {
		return nil, &runnererrors.ExecutorMissingError{NodeType: nodeType}
	}
	return executor.Execute(ctx, config, input)
}

// NewDefaultRegistry returns a registry pre-populated with the built-in
// node executors: http, transform, transformJQ, webhookTrigger,
// ifCondition, postgresWrite and notification.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("http", NewHTTPExecutor(nil))
	r.Register("transform", ExecutorFunc(TransformExecute))
	r.Register("transformJQ", ExecutorFunc(TransformJQExecute))
	r.Register("webhookTrigger", ExecutorFunc(WebhookTriggerExecute))
	r.Register("ifCondition", ExecutorFunc(IfConditionExecute))
	r.Register("postgresWrite", ExecutorFunc(PostgresWriteExecute))
	r.Register("notification", ExecutorFunc(NotificationExecute))
	return r
}
