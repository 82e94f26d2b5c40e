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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/tombee/runner/internal/config"
	"github.com/tombee/runner/internal/controller/backend"
	"github.com/tombee/runner/internal/controller/backend/memory"
	"github.com/tombee/runner/internal/controller/backend/postgres"
	"github.com/tombee/runner/internal/controller/backend/sqlite"
	"github.com/tombee/runner/internal/controller/bus"
	"github.com/tombee/runner/internal/controller/orchestrator"
	"github.com/tombee/runner/internal/daemon"
	"github.com/tombee/runner/internal/log"
	"github.com/tombee/runner/internal/operation"
	"github.com/tombee/runner/internal/tracing"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("runnerd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	be, err := openBackend(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open backend", slog.Any("error", err))
		os.Exit(1)
	}

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.ServiceName = "runner"
	tracingCfg.ServiceVersion = version

	otelProvider, err := tracing.NewOTelProviderWithConfig(context.Background(), tracingCfg)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		os.Exit(1)
	}

	registry := operation.NewDefaultRegistry()
	eventBus := bus.New(log.WithComponent(logger, "bus"))
	fetcher := newGraphFetcher(cfg)

	orch := orchestrator.New(be, registry, eventBus, fetcher,
		orchestrator.WithLogger(log.WithComponent(logger, "orchestrator")),
		orchestrator.WithTracer(otel.Tracer("github.com/tombee/runner/internal/controller/orchestrator")),
		orchestrator.WithMaxParallelRuns(cfg.MaxConcurrentRuns),
	)

	d := daemon.New(cfg, be, orch, eventBus, daemon.Options{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		fmt.Printf("\nreceived signal %v, shutting down...\n", sig)
		cancel()
		if err := d.Shutdown(context.Background()); err != nil {
			logger.Error("error during shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("daemon error", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", slog.Any("error", err))
	}
}

// newGraphFetcher selects between the HTTP workflow-definition-service
// client and the local YAML fixture loader based on cfg.WorkflowGraphDir.
func newGraphFetcher(cfg *config.Config) orchestrator.GraphFetcher {
	if cfg.WorkflowGraphDir != "" {
		return orchestrator.NewFileGraphFetcher(cfg.WorkflowGraphDir)
	}
	return orchestrator.NewHTTPGraphFetcher(cfg.WorkflowServiceURL, tracing.WrapHTTPClient(&http.Client{Timeout: cfg.GraphFetchTimeout}))
}

// openBackend selects a storage backend from DatabaseURL's scheme:
// "sqlite:<path>", "postgres://"/"postgresql://", or empty/"memory" for
// development and tests.
func openBackend(databaseURL string) (backend.Backend, error) {
	switch {
	case databaseURL == "" || databaseURL == "memory":
		return memory.New(), nil
	case strings.HasPrefix(databaseURL, "sqlite:"):
		path := strings.TrimPrefix(databaseURL, "sqlite:")
		return sqlite.New(sqlite.Config{Path: path, WAL: true})
	case strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.New(postgres.Config{
			ConnectionString: databaseURL,
			MaxOpenConns:     20,
			MaxIdleConns:     5,
			ConnMaxLifetime:  30 * time.Minute,
		})
	default:
		return nil, fmt.Errorf("unrecognized DATABASE_URL scheme: %q", databaseURL)
	}
}
