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
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger sets the structured logger used for orchestration diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTracer sets the OpenTelemetry tracer used to span each step dispatch.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// WithMaxParallelRuns bounds how many runs the orchestrator drives
// concurrently. Defaults to 10.
func WithMaxParallelRuns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.semaphore = make(chan struct{}, n)
		}
	}
}
