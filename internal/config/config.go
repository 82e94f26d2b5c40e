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

// Package config loads the runner daemon's environment-driven
// configuration (spec.md §6: DATABASE_URL, WORKFLOW_SERVICE_URL).
package config

import (
	"os"
	"strconv"
	"time"

	runnererrors "github.com/tombee/runner/pkg/errors"
)

// Config holds the daemon's runtime configuration.
type Config struct {
	// DatabaseURL selects and configures the storage backend. Recognized
	// schemes: "memory" (or empty, for dev/test), "sqlite:<path>",
	// "postgres://..."/"postgresql://...".
	DatabaseURL string

	// WorkflowServiceURL is the base URL of the external workflow
	// definition service (spec.md §6's GraphFetcher dependency).
	WorkflowServiceURL string

	// WorkflowGraphDir, if set, points the orchestrator at a directory of
	// <workflow_id>.yaml graph fixtures instead of WorkflowServiceURL --
	// for local development and tests run without the definition service.
	WorkflowGraphDir string

	// ListenAddr is the TCP address the HTTP API listens on.
	ListenAddr string

	// GraphFetchTimeout bounds a single workflow-graph fetch.
	GraphFetchTimeout time.Duration

	// MaxConcurrentRuns bounds how many runs the orchestrator drives at once.
	MaxConcurrentRuns int
}

// FromEnv loads Config from the process environment. WORKFLOW_SERVICE_URL
// or WORKFLOW_GRAPH_DIR is required; everything else has a
// development-friendly default.
func FromEnv() (*Config, error) {
	workflowGraphDir := os.Getenv("WORKFLOW_GRAPH_DIR")

	workflowServiceURL := os.Getenv("WORKFLOW_SERVICE_URL")
	if workflowServiceURL == "" && workflowGraphDir == "" {
		return nil, &runnererrors.ConfigError{
			Key:    "WORKFLOW_SERVICE_URL",
			Reason: "required: base URL of the workflow definition service (or set WORKFLOW_GRAPH_DIR for a local YAML fixture directory)",
		}
	}

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		WorkflowServiceURL: workflowServiceURL,
		WorkflowGraphDir:   workflowGraphDir,
		ListenAddr:         envOr("LISTEN_ADDR", ":8080"),
		GraphFetchTimeout:  10 * time.Second,
		MaxConcurrentRuns:  10,
	}

	if raw := os.Getenv("GRAPH_FETCH_TIMEOUT_SECONDS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.GraphFetchTimeout = time.Duration(n) * time.Second
		}
	}
	if raw := os.Getenv("MAX_CONCURRENT_RUNS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.MaxConcurrentRuns = n
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
