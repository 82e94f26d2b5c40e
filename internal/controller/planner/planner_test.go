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

package planner

import (
	"reflect"
	"testing"

	runnererrors "github.com/tombee/runner/pkg/errors"
)

func TestNew_LinearGraph(t *testing.T) {
	graph := Graph{
		Nodes: []Node{{ID: "A", Type: "http"}, {ID: "B", Type: "transform"}},
		Edges: []Edge{{Source: "A", Target: "B"}},
	}

	plan, err := New("wf-1", graph)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !reflect.DeepEqual(plan.Triggers(), []string{"A"}) {
		t.Errorf("expected trigger [A], got %v", plan.Triggers())
	}
	if !reflect.DeepEqual(plan.Deps("B"), []string{"A"}) {
		t.Errorf("expected B to depend on A, got %v", plan.Deps("B"))
	}
	if !reflect.DeepEqual(plan.Successors("A"), []string{"B"}) {
		t.Errorf("expected A's successor to be B, got %v", plan.Successors("A"))
	}
	if len(plan.Deps("A")) != 0 {
		t.Errorf("expected trigger node A to have no deps, got %v", plan.Deps("A"))
	}
}

func TestNew_EmptyWorkflow(t *testing.T) {
	_, err := New("wf-1", Graph{})
	if _, ok := err.(*runnererrors.EmptyWorkflowError); !ok {
		t.Fatalf("expected EmptyWorkflowError, got %T (%v)", err, err)
	}
}

func TestNew_DanglingEdge(t *testing.T) {
	graph := Graph{
		Nodes: []Node{{ID: "A"}},
		Edges: []Edge{{Source: "A", Target: "missing"}},
	}
	_, err := New("wf-1", graph)
	if _, ok := err.(*runnererrors.DanglingEdgeError); !ok {
		t.Fatalf("expected DanglingEdgeError, got %T (%v)", err, err)
	}
}

func TestNew_NoTriggerNode(t *testing.T) {
	// A cycle with no node having zero incoming edges.
	graph := Graph{
		Nodes: []Node{{ID: "A"}, {ID: "B"}},
		Edges: []Edge{{Source: "A", Target: "B"}, {Source: "B", Target: "A"}},
	}
	_, err := New("wf-1", graph)
	if _, ok := err.(*runnererrors.NoTriggerError); !ok {
		t.Fatalf("expected NoTriggerError, got %T (%v)", err, err)
	}
}

func TestNew_Cycle(t *testing.T) {
	graph := Graph{
		Nodes: []Node{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		Edges: []Edge{
			{Source: "A", Target: "B"},
			{Source: "B", Target: "C"},
			{Source: "C", Target: "B"},
		},
	}
	_, err := New("wf-1", graph)
	cycleErr, ok := err.(*runnererrors.CycleError)
	if !ok {
		t.Fatalf("expected CycleError, got %T (%v)", err, err)
	}
	if len(cycleErr.Cycle) == 0 {
		t.Error("expected cycle error to name the nodes involved")
	}
}

func TestNew_LoneSelfLoopHasNoTrigger(t *testing.T) {
	graph := Graph{
		Nodes: []Node{{ID: "A"}},
		Edges: []Edge{{Source: "A", Target: "A"}},
	}
	_, err := New("wf-1", graph)
	if _, ok := err.(*runnererrors.NoTriggerError); !ok {
		// A sole self-looping node has an incoming edge, so it fails the
		// trigger check before the cycle check ever runs.
		t.Fatalf("expected NoTriggerError for a lone self-loop, got %T (%v)", err, err)
	}
}

func TestNew_DiamondGraphMultipleTriggersAndSuccessors(t *testing.T) {
	graph := Graph{
		Nodes: []Node{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}},
		Edges: []Edge{
			{Source: "A", Target: "B"},
			{Source: "A", Target: "C"},
			{Source: "B", Target: "D"},
			{Source: "C", Target: "D"},
		},
	}

	plan, err := New("wf-1", graph)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !reflect.DeepEqual(plan.Successors("A"), []string{"B", "C"}) {
		t.Errorf("expected A's successors [B C], got %v", plan.Successors("A"))
	}
	if !reflect.DeepEqual(plan.Deps("D"), []string{"B", "C"}) {
		t.Errorf("expected D's deps [B C], got %v", plan.Deps("D"))
	}
}

func TestNew_NodeLookup(t *testing.T) {
	graph := Graph{Nodes: []Node{{ID: "A", Type: "http", Properties: map[string]any{"url": "https://example.com"}}}}
	plan, err := New("wf-1", graph)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	node, ok := plan.Node("A")
	if !ok || node.Type != "http" {
		t.Fatalf("expected node A of type http, got %+v (ok=%v)", node, ok)
	}
	if _, ok := plan.Node("missing"); ok {
		t.Error("expected missing node lookup to report not found")
	}
}
