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

// Package orchestrator drives a single run end to end: it fetches the
// workflow graph, plans it with internal/controller/planner, walks a
// ready queue dispatching each node to internal/operation's executor
// registry, persists outcomes via internal/controller/backend, and
// publishes lifecycle events onto internal/controller/bus.
//
// A run is resumed rather than restarted when it is not pending: steps
// already succeeded are replayed from their stored output, and steps
// left running by a previous, presumably crashed, worker are retried.
//
// Concurrency is bounded by a semaphore sized to the number of runs the
// orchestrator will drive at once. Within one run, every node whose deps
// have all succeeded forms a ready wave, and the nodes of a wave execute
// concurrently (errgroup); the first failure in a wave cancels the rest
// and fails the run. Dep outputs are merged in lexicographic dep order,
// so the merged input does not depend on completion order.
package orchestrator
