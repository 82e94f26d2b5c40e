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
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tombee/runner/internal/controller/planner"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

// yamlNode and yamlEdge mirror HTTPGraphFetcher's wire format but in YAML,
// for workflow graphs checked into a repo as fixtures rather than served by
// the definition service.
type yamlNode struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties"`
}

type yamlEdge struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

type yamlGraph struct {
	Nodes []yamlNode `yaml:"nodes"`
	Edges []yamlEdge `yaml:"edges"`
}

// FileGraphFetcher loads workflow graphs from a directory of YAML files,
// one per workflow ID (<dir>/<workflow_id>.yaml), for local development
// and tests that run without the workflow-definition-service.
type FileGraphFetcher struct {
	dir string
}

// NewFileGraphFetcher creates a fetcher rooted at dir.
func NewFileGraphFetcher(dir string) *FileGraphFetcher {
	return &FileGraphFetcher{dir: dir}
}

// FetchGraph implements GraphFetcher.
func (f *FileGraphFetcher) FetchGraph(_ context.Context, workflowID string) (planner.Graph, error) {
	path := filepath.Join(f.dir, workflowID+".yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return planner.Graph{}, &runnererrors.NotFoundError{Resource: "workflow graph fixture", ID: workflowID}
		}
		return planner.Graph{}, &runnererrors.UpstreamError{Service: "workflow-graph-fixtures", Cause: err}
	}

	var wire yamlGraph
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return planner.Graph{}, fmt.Errorf("parse workflow graph fixture %s: %w", path, err)
	}

	graph := planner.Graph{
		Nodes: make([]planner.Node, len(wire.Nodes)),
		Edges: make([]planner.Edge, len(wire.Edges)),
	}
	for i, n := range wire.Nodes {
		graph.Nodes[i] = planner.Node{ID: n.ID, Type: n.Type, Properties: n.Properties}
	}
	for i, e := range wire.Edges {
		graph.Edges[i] = planner.Edge{Source: e.Source, Target: e.Target}
	}
	return graph, nil
}
