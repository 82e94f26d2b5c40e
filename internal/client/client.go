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

// Package client is a thin HTTP client for runnerd's run-intake API, used
// by runnerctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client talks to a runnerd instance's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	orgID      string
	userID     string
	role       string
}

// Option configures a Client.
type Option func(*Client)

// New creates a client rooted at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithActor sets the X-Org-Id/X-User-Id/X-User-Role headers sent with
// every request.
func WithActor(orgID, userID, role string) Option {
	return func(c *Client) {
		c.orgID = orgID
		c.userID = userID
		c.role = role
	}
}

// Run mirrors backend.Run's wire shape without importing the server-side
// package, keeping the client buildable standalone.
type Run struct {
	ID          string  `json:"id"`
	WorkflowID  string  `json:"workflow_id"`
	OrgID       string  `json:"org_id,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	FinishedAt  *string `json:"finished_at,omitempty"`
	Error       string  `json:"error,omitempty"`
	TriggeredBy string  `json:"triggered_by,omitempty"`
}

// StepRun mirrors backend.StepRun's wire shape.
type StepRun struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	OrgID      string         `json:"org_id,omitempty"`
	NodeID     string         `json:"node_id"`
	Status     string         `json:"status"`
	StartedAt  *string        `json:"started_at,omitempty"`
	FinishedAt *string        `json:"finished_at,omitempty"`
	InputJSON  map[string]any `json:"input_json,omitempty"`
	OutputJSON map[string]any `json:"output_json,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// SubmitRun creates a new run of workflowID.
func (c *Client) SubmitRun(ctx context.Context, workflowID string) (*Run, error) {
	body, err := json.Marshal(map[string]string{"workflow_id": workflowID})
	if err != nil {
		return nil, err
	}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/runs", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun fetches a run by ID.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists runs, optionally filtered by workflowID and bounded by limit.
func (c *Client) ListRuns(ctx context.Context, workflowID string, limit int) ([]Run, error) {
	q := url.Values{}
	if workflowID != "" {
		q.Set("workflow_id", workflowID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var runs []Run
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListSteps lists the steps recorded for a run.
func (c *Client) ListSteps(ctx context.Context, runID string) ([]StepRun, error) {
	var steps []StepRun
	if err := c.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID)+"/steps", nil, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// StreamEvents connects to a run's SSE event stream and copies raw frames
// to w until ctx is cancelled or the server closes the connection.
func (c *Client) StreamEvents(ctx context.Context, runID string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runs/"+url.PathEscape(runID)+"/events", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromBody(resp)
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.errorFromBody(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.orgID != "" {
		req.Header.Set("X-Org-Id", c.orgID)
	}
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
	}
	if c.role != "" {
		req.Header.Set("X-User-Role", c.role)
	}
}

func (c *Client) errorFromBody(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("unexpected status: %s", resp.Status)
}
