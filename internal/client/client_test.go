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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitRun_SendsWorkflowIDAndActorHeaders(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/runs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Org-Id") != "org-1" {
			t.Errorf("expected X-Org-Id header, got %q", r.Header.Get("X-Org-Id"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Run{ID: "r1", WorkflowID: gotBody["workflow_id"], Status: "pending"})
	}))
	defer server.Close()

	c := New(server.URL, WithActor("org-1", "user-1", "MEMBER"))
	run, err := c.SubmitRun(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("SubmitRun: %v", err)
	}
	if run.ID != "r1" || run.WorkflowID != "wf-1" {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestGetRun_PropagatesNotFoundAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "run not found"})
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.GetRun(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestListRuns_EncodesFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("workflow_id") != "wf-a" {
			t.Errorf("expected workflow_id=wf-a, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]Run{{ID: "r1", WorkflowID: "wf-a"}})
	}))
	defer server.Close()

	c := New(server.URL)
	runs, err := c.ListRuns(context.Background(), "wf-a", 5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestStreamEvents_CopiesBodyUntilClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: run_state\ndata: {}\n\n"))
	}))
	defer server.Close()

	c := New(server.URL)
	var buf []byte
	w := &sliceWriter{buf: &buf}
	if err := c.StreamEvents(context.Background(), "r1", w); err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	if string(buf) == "" {
		t.Fatal("expected non-empty stream body")
	}
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
