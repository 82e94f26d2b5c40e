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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/runner/internal/controller/planner"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

// GraphFetcher loads the workflow graph for workflowID from the external
// definition service.
type GraphFetcher interface {
	FetchGraph(ctx context.Context, workflowID string) (planner.Graph, error)
}

// wireNode and wireEdge mirror the definition service's wire format:
// nodes carry their executor type and config under data, edges are a
// flat source/target pair.
type wireNode struct {
	ID   string `json:"id"`
	Data struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	} `json:"data"`
}

type wireEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type wireGraph struct {
	Nodes []wireNode `json:"nodes"`
	Edges []wireEdge `json:"edges"`
}

// wireResponse mirrors the definition service's envelope:
// {"graph": {"nodes": [...], "edges": [...]}}.
type wireResponse struct {
	Graph wireGraph `json:"graph"`
}

// HTTPGraphFetcher fetches a workflow graph via HTTP GET
// {baseURL}/api/workflows/{workflow_id}.
type HTTPGraphFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGraphFetcher creates a fetcher rooted at baseURL (e.g.
// http://workflow-service:8080, no trailing slash required).
func NewHTTPGraphFetcher(baseURL string, client *http.Client) *HTTPGraphFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGraphFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// FetchGraph implements GraphFetcher.
func (f *HTTPGraphFetcher) FetchGraph(ctx context.Context, workflowID string) (planner.Graph, error) {
	url := fmt.Sprintf("%s/api/workflows/%s", f.baseURL, workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return planner.Graph{}, &runnererrors.UpstreamError{Service: "workflow-definition-service", Cause: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return planner.Graph{}, &runnererrors.UpstreamError{Service: "workflow-definition-service", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return planner.Graph{}, &runnererrors.UpstreamError{
			Service:    "workflow-definition-service",
			StatusCode: resp.StatusCode,
		}
	}

	var envelope wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return planner.Graph{}, &runnererrors.UpstreamError{Service: "workflow-definition-service", Cause: err}
	}
	wire := envelope.Graph

	graph := planner.Graph{
		Nodes: make([]planner.Node, len(wire.Nodes)),
		Edges: make([]planner.Edge, len(wire.Edges)),
	}
	for i, n := range wire.Nodes {
		graph.Nodes[i] = planner.Node{ID: n.ID, Type: n.Data.Type, Properties: n.Data.Properties}
	}
	for i, e := range wire.Edges {
		graph.Edges[i] = planner.Edge{Source: e.Source, Target: e.Target}
	}
	return graph, nil
}
