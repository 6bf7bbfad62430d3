// Package server hosts the driver loop that owns every piece of
// mutable core state: the master request list, the active task set,
// the dependency index, the packaging engine, and the set of
// connected clients. Everything that touches that state is called
// from this loop's goroutine only (§5's single-writer invariant); the
// watcher bridge and the fanout hub only ever hand it queued values to
// drain.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relicforge/resourceserver/internal/fanout"
	"github.com/relicforge/resourceserver/internal/packaging"
	"github.com/relicforge/resourceserver/internal/requestmgr"
	"github.com/relicforge/resourceserver/internal/resource"
	"github.com/relicforge/resourceserver/internal/watch"
)

// Config holds the HTTP listener and driver-loop tuning the server is
// constructed with.
type Config struct {
	Address string

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration

	// TickInterval is the driver loop's period. The core spec leaves
	// the exact cadence unspecified; 10ms keeps client-visible latency
	// well under a frame while staying cheap to poll.
	TickInterval time.Duration

	// AdminHTTPEnabled mounts /healthz, /metrics and /debug/packaging
	// alongside the websocket upgrade endpoint.
	AdminHTTPEnabled bool
}

// DefaultConfig returns the server's default listener and loop tuning.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":19190",
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		TickInterval:      10 * time.Millisecond,
		AdminHTTPEnabled:  true,
	}
}

// Server is the resource server's driver loop plus its HTTP/websocket
// transport. It owns no core state directly; the request manager,
// watcher bridge, packaging engine and fanout hub passed to New do.
type Server struct {
	config *Config
	logger *zap.Logger

	manager *requestmgr.Manager
	bridge  *watch.Bridge
	engine  *packaging.Engine
	hub     *fanout.Hub

	httpServer *http.Server
	listener   net.Listener

	isExiting atomic.Bool
}

// New wires a Server around the already-constructed core components.
// The caller is responsible for having connected engine's busy state
// into manager via manager.SetPackagingBusyFunc, and for everything's
// lifetime exceeding the Server's.
func New(config *Config, manager *requestmgr.Manager, bridge *watch.Bridge, engine *packaging.Engine, hub *fanout.Hub, logger *zap.Logger) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if manager == nil || bridge == nil || engine == nil || hub == nil {
		return nil, fmt.Errorf("server requires a manager, bridge, engine and hub")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  config,
		logger:  logger,
		manager: manager,
		bridge:  bridge,
		engine:  engine,
		hub:     hub,
	}

	mux := chi.NewRouter()
	upgrader := fanout.NewUpgrader(hub, logger)
	mux.Handle("/ws", upgrader)
	if config.AdminHTTPEnabled {
		mux.Get("/healthz", s.handleHealthz)
		mux.Get("/metrics", s.handleMetrics)
		mux.Get("/debug/packaging", s.handleDebugPackaging)
	}

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           mux,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return s, nil
}

// IsExiting reports whether the server has begun its shutdown
// sequence. The worker pool polls this (via the isExiting callback
// it's constructed with) to skip starting newly-dequeued tasks once
// draining is underway.
func (s *Server) IsExiting() bool {
	return s.isExiting.Load()
}

// Addr returns the server's bound network address, valid only once
// Run has started listening.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// Run starts the HTTP listener, the watcher, and the hub, then drives
// the tick loop until ctx is cancelled, at which point it performs the
// shutdown sequence and returns.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	if err := s.bridge.Start(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	go s.hub.Run()

	serveErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("http server failed: %w", err)
			return
		}
		serveErr <- nil
	}()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.logger.Info("resource server started", zap.String("address", listener.Addr().String()))

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()

		case err := <-serveErr:
			s.shutdown()
			return err

		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one pass of the six-step server loop algorithm: pump
// inbound transport traffic into requests, advance packaging, reap
// completed tasks, pump settled file-system changes into requests, and
// flush any accumulated outbound notifications.
func (s *Server) tick() {
	for _, inbound := range s.hub.Drain() {
		s.manager.CreateRequest(inbound.RawID, inbound.ClientID, resource.External, "")
	}

	s.engine.Tick(s.manager)

	s.manager.Tick()

	for _, change := range s.bridge.Drain() {
		s.manager.CreateRequestForID(change.ID, 0, resource.FileWatcher, change.ExtraInfo)
	}

	s.hub.Flush()
}

// shutdown implements §5's exit sequence: mark exiting so in-flight
// reaps suppress notifications, drain the pool, drop every request,
// stop the watcher, and tear down the transport.
func (s *Server) shutdown() error {
	s.isExiting.Store(true)
	s.logger.Info("resource server shutting down")

	s.manager.Shutdown()

	if err := s.bridge.Stop(); err != nil {
		s.logger.Warn("watcher stop failed", zap.Error(err))
	}

	s.hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Metrics().Snapshot()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for status, count := range snap.Counts {
		fmt.Fprintf(w, "compile_total{status=%q} %d\n", status.String(), count)
		fmt.Fprintf(w, "compile_duration_avg_ms{status=%q} %d\n", status.String(), snap.AvgDuration[status].Milliseconds())
		fmt.Fprintf(w, "compile_duration_min_ms{status=%q} %d\n", status.String(), snap.MinDuration[status].Milliseconds())
		fmt.Fprintf(w, "compile_duration_max_ms{status=%q} %d\n", status.String(), snap.MaxDuration[status].Milliseconds())
	}
	fmt.Fprintf(w, "compile_spawn_failures_total %d\n", snap.SpawnFailures)
	fmt.Fprintf(w, "compile_join_failures_total %d\n", snap.JoinFailures)
}

func (s *Server) handleDebugPackaging(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"state":    s.engine.State().String(),
		"progress": s.engine.Progress(),
	})
}
