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

package bus

// Event type names, per the fixed event schemas.
const (
	EventRunStarted    = "run_started"
	EventStepStarted   = "step_started"
	EventStepSucceeded = "step_succeeded"
	EventStepFailed    = "step_failed"
	EventRunFinished   = "run_finished"
	EventRunState      = "run_state"
)

// PublishRunStarted emits run_started{run_id, started_at}.
func (b *Bus) PublishRunStarted(runID, startedAt string) {
	b.Publish(runID, EventRunStarted, map[string]any{
		"run_id":     runID,
		"started_at": startedAt,
	})
}

// PublishStepStarted emits step_started{step_id, node_id, node_type}.
func (b *Bus) PublishStepStarted(runID, stepID, nodeID, nodeType string) {
	b.Publish(runID, EventStepStarted, map[string]any{
		"step_id":   stepID,
		"node_id":   nodeID,
		"node_type": nodeType,
	})
}

// PublishStepSucceeded emits step_succeeded{step_id, node_id, output}.
func (b *Bus) PublishStepSucceeded(runID, stepID, nodeID string, output any) {
	b.Publish(runID, EventStepSucceeded, map[string]any{
		"step_id": stepID,
		"node_id": nodeID,
		"output":  output,
	})
}

// PublishStepFailed emits step_failed{step_id, node_id, error}.
func (b *Bus) PublishStepFailed(runID, stepID, nodeID, errMsg string) {
	b.Publish(runID, EventStepFailed, map[string]any{
		"step_id": stepID,
		"node_id": nodeID,
		"error":   errMsg,
	})
}

// PublishRunFinished emits run_finished{run_id, status, error?, finished_at}.
func (b *Bus) PublishRunFinished(runID, status, errMsg, finishedAt string) {
	data := map[string]any{
		"run_id":      runID,
		"status":      status,
		"finished_at": finishedAt,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	b.Publish(runID, EventRunFinished, data)
}

// PublishRunState emits a run_state replay-only snapshot of the run row.
func (b *Bus) PublishRunState(runID string, snapshot map[string]any) {
	b.Publish(runID, EventRunState, snapshot)
}
