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

// Package daemon wires the HTTP server lifecycle for runnerd: router
// construction, listener binding, and graceful drain-then-shutdown.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/runner/internal/config"
	"github.com/tombee/runner/internal/controller/backend"
	"github.com/tombee/runner/internal/controller/bus"
	"github.com/tombee/runner/internal/controller/orchestrator"
	"github.com/tombee/runner/internal/daemon/api"
	internallog "github.com/tombee/runner/internal/log"
)

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// DrainTimeout bounds how long Shutdown waits for active runs to finish
// before giving up.
const DrainTimeout = 30 * time.Second

// Daemon is the runnerd HTTP server.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	backend      backend.Backend
	orchestrator *orchestrator.Orchestrator

	server *http.Server
	ln     net.Listener

	mu      sync.Mutex
	started bool
}

// New wires a Daemon from an already-constructed backend and orchestrator.
// Backend selection (memory/sqlite/postgres) and orchestrator options are a
// main-package concern; the daemon only owns the HTTP lifecycle around them.
func New(cfg *config.Config, be backend.Backend, orch *orchestrator.Orchestrator, eventBus *bus.Bus, opts Options) *Daemon {
	logger := internallog.WithComponent(internallog.New(internallog.FromEnv()), "daemon")

	router := api.NewRouter(api.RouterConfig{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
	})
	router.SetMetricsHandler(promhttp.Handler())

	runsHandler := api.NewRunsHandler(be, orch)
	runsHandler.RegisterRoutes(router.Mux())

	eventsHandler := api.NewEventsHandler(be, eventBus)
	eventsHandler.RegisterRoutes(router.Mux())

	return &Daemon{
		cfg:          cfg,
		opts:         opts,
		logger:       logger,
		backend:      be,
		orchestrator: orch,
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start binds the listener and serves until ctx is cancelled or the server
// fails. A nil error on return means ctx was cancelled; the caller is
// expected to call Shutdown afterward.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	ln, err := net.Listen("tcp", d.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", d.server.Addr, err)
	}
	d.ln = ln

	d.logger.Info("runnerd starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight runs, stops accepting new connections, and
// closes the HTTP server and backend. Grounded on the teacher's
// drain-then-close shutdown sequence, reduced to this daemon's scope (no
// leader election, no scheduler, no MCP registry to stop).
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.logger.Info("graceful shutdown initiated")

	d.orchestrator.StartDraining()
	d.server.SetKeepAlivesEnabled(false)

	drainCtx, cancel := context.WithTimeout(ctx, DrainTimeout)
	defer cancel()
	if err := d.orchestrator.Wait(drainCtx); err != nil {
		d.logger.Warn("drain timeout exceeded", slog.Duration("drain_timeout", DrainTimeout))
	} else {
		d.logger.Info("all runs completed during drain")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := d.backend.Close(); err != nil {
		d.logger.Warn("backend close error", internallog.Error(err))
	}

	return nil
}
