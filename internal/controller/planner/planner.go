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

// Package planner validates a workflow graph and exposes the dependency
// queries the run orchestrator needs to drive execution. It does not
// choose an execution order itself.
package planner

import (
	"sort"

	runnererrors "github.com/tombee/runner/pkg/errors"
)

// Node is a workflow graph node as fetched from the definition service.
type Node struct {
	ID         string
	Type       string
	Properties map[string]any
}

// Edge is a directed dependency between two node ids.
type Edge struct {
	Source string
	Target string
}

// Graph is the raw (nodes, edges) input to Plan.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Plan is the validated result of planning a graph: per-node dependency
// and successor lookups, ready for the orchestrator to drive.
type Plan struct {
	nodes     map[string]Node
	deps      map[string][]string
	successor map[string][]string
	triggers  []string
}

// New validates workflowID's graph and builds the dependency/successor
// indices the orchestrator consumes. Returns EmptyWorkflowError if there
// are no nodes, DanglingEdgeError if an edge references an unknown node,
// NoTriggerError if no node has zero incoming edges, and CycleError if
// the graph is not acyclic.
func New(workflowID string, graph Graph) (*Plan, error) {
	if len(graph.Nodes) == 0 {
		return nil, &runnererrors.EmptyWorkflowError{WorkflowID: workflowID}
	}

	nodes := make(map[string]Node, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodes[n.ID] = n
	}

	incoming := make(map[string][]string, len(nodes))
	outgoing := make(map[string][]string, len(nodes))
	for id := range nodes {
		incoming[id] = nil
		outgoing[id] = nil
	}

	for _, e := range graph.Edges {
		if _, ok := nodes[e.Source]; !ok {
			return nil, &runnererrors.DanglingEdgeError{WorkflowID: workflowID, Source: e.Source, Target: e.Target}
		}
		if _, ok := nodes[e.Target]; !ok {
			return nil, &runnererrors.DanglingEdgeError{WorkflowID: workflowID, Source: e.Source, Target: e.Target}
		}
		incoming[e.Target] = append(incoming[e.Target], e.Source)
		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
	}

	var triggers []string
	for id := range nodes {
		if len(incoming[id]) == 0 {
			triggers = append(triggers, id)
		}
	}
	if len(triggers) == 0 {
		return nil, &runnererrors.NoTriggerError{WorkflowID: workflowID}
	}
	sort.Strings(triggers)

	if cycle := findCycle(nodes, outgoing); cycle != nil {
		return nil, &runnererrors.CycleError{WorkflowID: workflowID, Cycle: cycle}
	}

	for id, deps := range incoming {
		sort.Strings(deps)
		incoming[id] = deps
	}
	for id, succs := range outgoing {
		sort.Strings(succs)
		outgoing[id] = succs
	}

	return &Plan{nodes: nodes, deps: incoming, successor: outgoing, triggers: triggers}, nil
}

// findCycle runs Kahn's algorithm (repeatedly removing zero-indegree
// nodes) and returns the ids still unremoved when no more can be removed
// — i.e. the nodes forming a cycle — or nil if the graph is acyclic.
func findCycle(nodes map[string]Node, outgoing map[string][]string) []string {
	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for _, succs := range outgoing {
		for _, s := range succs {
			indegree[s]++
		}
	}

	var queue []string
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, succ := range outgoing[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if removed == len(nodes) {
		return nil
	}

	var remaining []string
	for id, d := range indegree {
		if d > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Strings(remaining)
	return remaining
}

// Triggers returns the sorted ids of nodes with no incoming edges.
func (p *Plan) Triggers() []string {
	out := make([]string, len(p.triggers))
	copy(out, p.triggers)
	return out
}

// Deps returns the sorted ids of node's direct upstream dependencies.
func (p *Plan) Deps(node string) []string {
	return p.deps[node]
}

// Successors returns the sorted ids of node's direct downstream nodes.
func (p *Plan) Successors(node string) []string {
	return p.successor[node]
}

// Node returns the node metadata for id.
func (p *Plan) Node(id string) (Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// NodeIDs returns all node ids in the graph, in no particular order.
func (p *Plan) NodeIDs() []string {
	ids := make([]string, 0, len(p.nodes))
	for id := range p.nodes {
		ids = append(ids, id)
	}
	return ids
}
