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

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tombee/runner/internal/controller/backend"
	"github.com/tombee/runner/internal/controller/bus"
)

// heartbeatInterval is the silence threshold after which the stream sends
// a keepalive comment frame, per spec.md §4.6/§6.
const heartbeatInterval = 30 * time.Second

// EventsHandler streams run lifecycle events over SSE (spec.md §4.6).
type EventsHandler struct {
	backend backend.Backend
	bus     *bus.Bus
}

// NewEventsHandler creates a new events stream handler.
func NewEventsHandler(be backend.Backend, eventBus *bus.Bus) *EventsHandler {
	return &EventsHandler{backend: be, bus: eventBus}
}

// RegisterRoutes registers the event-stream route.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /runs/{id}/events", h.handleStream)
}

// handleStream handles GET /runs/{id}/events.
func (h *EventsHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, err := h.backend.GetRun(r.Context(), runID)
	if err != nil {
		writeErr(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, handle := h.bus.Subscribe(runID)
	defer h.bus.Unsubscribe(handle)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if !writeFrame(w, flusher, bus.EventRunState, runSnapshot(run)) {
		return
	}

	steps, err := h.backend.ListSteps(r.Context(), runID)
	if err != nil {
		return
	}
	for _, step := range steps {
		if !writeFrame(w, flusher, fmt.Sprintf("step_%s", step.Status), stepSnapshot(step)) {
			return
		}
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			if !writeFrame(w, flusher, event.Type, event.Data) {
				return
			}
			if event.Type == bus.EventRunFinished {
				return
			}
			ticker.Reset(heartbeatInterval)
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeFrame writes one `event: <type>\ndata: <json>\n\n` frame and flushes.
// It returns false if the write failed, signalling the caller to give up.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// runSnapshot builds the run_state replay payload for a run row.
func runSnapshot(run *backend.Run) map[string]any {
	data := map[string]any{
		"run_id":     run.ID,
		"status":     run.Status,
		"created_at": run.CreatedAt.Format(time.RFC3339),
	}
	if run.StartedAt != nil {
		data["started_at"] = run.StartedAt.Format(time.RFC3339)
	}
	if run.FinishedAt != nil {
		data["finished_at"] = run.FinishedAt.Format(time.RFC3339)
	}
	return data
}

// stepSnapshot builds a synthetic step_{status} replay payload for a step row.
func stepSnapshot(step *backend.StepRun) map[string]any {
	data := map[string]any{
		"step_id": step.ID,
		"node_id": step.NodeID,
		"status":  step.Status,
	}
	if step.StartedAt != nil {
		data["started_at"] = step.StartedAt.Format(time.RFC3339)
	}
	if step.FinishedAt != nil {
		data["finished_at"] = step.FinishedAt.Format(time.RFC3339)
	}
	return data
}
