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

package config

import (
	"testing"
)

func TestFromEnv_RequiresWorkflowServiceURL(t *testing.T) {
	t.Setenv("WORKFLOW_SERVICE_URL", "")
	t.Setenv("WORKFLOW_GRAPH_DIR", "")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected error when neither WORKFLOW_SERVICE_URL nor WORKFLOW_GRAPH_DIR is set")
	}
}

func TestFromEnv_WorkflowGraphDirSatisfiesRequirement(t *testing.T) {
	t.Setenv("WORKFLOW_SERVICE_URL", "")
	t.Setenv("WORKFLOW_GRAPH_DIR", "/etc/runner/graphs")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.WorkflowGraphDir != "/etc/runner/graphs" {
		t.Errorf("unexpected WorkflowGraphDir: %s", cfg.WorkflowGraphDir)
	}
}

func TestFromEnv_AppliesDefaults(t *testing.T) {
	t.Setenv("WORKFLOW_SERVICE_URL", "http://workflow-service:8080")
	t.Setenv("WORKFLOW_GRAPH_DIR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("GRAPH_FETCH_TIMEOUT_SECONDS", "")
	t.Setenv("MAX_CONCURRENT_RUNS", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.WorkflowServiceURL != "http://workflow-service:8080" {
		t.Errorf("unexpected WorkflowServiceURL: %s", cfg.WorkflowServiceURL)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("unexpected default ListenAddr: %s", cfg.ListenAddr)
	}
	if cfg.MaxConcurrentRuns != 10 {
		t.Errorf("unexpected default MaxConcurrentRuns: %d", cfg.MaxConcurrentRuns)
	}
}

func TestFromEnv_OverridesFromEnvironment(t *testing.T) {
	t.Setenv("WORKFLOW_SERVICE_URL", "http://workflow-service:8080")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("MAX_CONCURRENT_RUNS", "25")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Errorf("unexpected DatabaseURL: %s", cfg.DatabaseURL)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("unexpected ListenAddr: %s", cfg.ListenAddr)
	}
	if cfg.MaxConcurrentRuns != 25 {
		t.Errorf("unexpected MaxConcurrentRuns: %d", cfg.MaxConcurrentRuns)
	}
}
