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
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/runner/internal/controller/backend"
	"github.com/tombee/runner/internal/controller/orchestrator"
	"github.com/tombee/runner/internal/daemon/httputil"
	"github.com/tombee/runner/internal/reqctx"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

const defaultListLimit = 100

// RunsHandler handles run and step-run intake and lookup requests (spec.md
// §4.7, §6).
type RunsHandler struct {
	backend      backend.Backend
	orchestrator *orchestrator.Orchestrator
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(be backend.Backend, orch *orchestrator.Orchestrator) *RunsHandler {
	return &RunsHandler{backend: be, orchestrator: orch}
}

// RegisterRoutes registers run and step-run routes on the router.
func (h *RunsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs", h.handleCreate)
	mux.HandleFunc("GET /runs", h.handleList)
	mux.HandleFunc("GET /runs/{id}", h.handleGet)
	mux.HandleFunc("GET /runs/{id}/steps", h.handleListSteps)
	mux.HandleFunc("GET /runs/{id}/steps/{step_id}", h.handleGetStep)
}

// createRunRequest is the request body for POST /runs.
type createRunRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// handleCreate handles POST /runs: authorize by role, persist a pending
// run stamped with the caller's org, and hand it to the orchestrator.
func (h *RunsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor := reqctx.ActorFromContext(r.Context())
	if !actor.AllowsAny(reqctx.RoleOwner, reqctx.RoleAdmin, reqctx.RoleMember) {
		writeErr(w, &runnererrors.ForbiddenError{Role: actor.Role, Reason: "insufficient permissions to create runs"})
		return
	}
	if h.orchestrator.IsDraining() {
		writeErr(w, &runnererrors.UnavailableError{Reason: "orchestrator is shutting down, not accepting new runs"})
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &runnererrors.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if req.WorkflowID == "" {
		writeErr(w, &runnererrors.ValidationError{Field: "workflow_id", Message: "workflow_id is required"})
		return
	}

	run := &backend.Run{
		ID:          uuid.New().String(),
		WorkflowID:  req.WorkflowID,
		OrgID:       actor.OrgID,
		Status:      backend.RunPending,
		CreatedAt:   time.Now().UTC(),
		TriggeredBy: actor.UserID,
	}
	if err := h.backend.CreateRun(r.Context(), run); err != nil {
		writeErr(w, err)
		return
	}

	h.orchestrator.Submit(run.ID)

	httputil.WriteJSON(w, http.StatusCreated, run)
}

// handleGet handles GET /runs/{id}.
func (h *RunsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.backend.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

// handleList handles GET /runs?workflow_id=&limit=.
func (h *RunsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := backend.RunFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Limit:      defaultListLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	runs, err := h.backend.ListRuns(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

// handleListSteps handles GET /runs/{id}/steps, ordered by started_at.
func (h *RunsHandler) handleListSteps(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, err := h.backend.GetRun(r.Context(), runID); err != nil {
		writeErr(w, err)
		return
	}

	steps, err := h.backend.ListSteps(r.Context(), runID)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, steps)
}

// handleGetStep handles GET /runs/{id}/steps/{step_id}. step_id addresses
// the StepRun's own id, distinct from node_id, so this searches the run's
// steps rather than using the backend's (run_id, node_id) accessor.
func (h *RunsHandler) handleGetStep(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	stepID := r.PathValue("step_id")

	if _, err := h.backend.GetRun(r.Context(), runID); err != nil {
		writeErr(w, err)
		return
	}

	steps, err := h.backend.ListSteps(r.Context(), runID)
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, step := range steps {
		if step.ID == stepID {
			httputil.WriteJSON(w, http.StatusOK, step)
			return
		}
	}
	writeErr(w, &runnererrors.NotFoundError{Resource: "step", ID: stepID})
}

// errorStatus maps a runnererrors-classified error to an HTTP status code.
func errorStatus(err error) int {
	type classifier interface{ ErrorType() string }
	c, ok := err.(classifier)
	if !ok {
		return http.StatusInternalServerError
	}
	switch c.ErrorType() {
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	case "validation":
		return http.StatusBadRequest
	case "unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err as a JSON error body with the status its kind maps to.
func writeErr(w http.ResponseWriter, err error) {
	httputil.WriteError(w, errorStatus(err), err.Error())
}
