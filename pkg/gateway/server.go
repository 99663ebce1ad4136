package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moonrox420/chimera-gateway/pkg/config"
)

// Server accepts WebSocket connections and supervises one Handler per
// connection. Handlers are fully isolated: a panic or slow stream in one
// never affects the listener or any other connection.
type Server struct {
	config  config.ServerConfig
	metrics config.MetricsConfig
	deps    Deps
	logger  *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server

	// conns tracks live handler goroutines so shutdown can wait for them.
	conns       sync.WaitGroup
	connCtx     context.Context
	cancelConns context.CancelFunc

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a gateway server. The handler dependencies in deps are
// shared across all connections.
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connCtx, cancelConns := context.WithCancel(context.Background())

	return &Server{
		config:  cfg.Server,
		metrics: cfg.Telemetry.Metrics,
		deps:    deps,
		logger:  logger.With("component", "gateway.server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are programs, not browsers; origin carries no signal.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		connCtx:      connCtx,
		cancelConns:  cancelConns,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the listener and blocks until shutdown. Shutdown is triggered
// by context cancellation, SIGINT/SIGTERM, or a call to Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:        s.config.ListenAddress,
		Handler:     s.Handler(),
		ReadTimeout: s.config.ReadTimeout,
		IdleTimeout: s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop requests a graceful shutdown of a running server.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown gracefully shuts down the server: it stops accepting upgrades,
// cancels live connections, and waits for their handlers to finish, bounded
// by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if s.httpServer != nil {
		// Shutdown does not touch hijacked WebSocket connections; those are
		// torn down by cancelling the connection context below.
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during listener shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	// Cancelling the connection context closes every live connection and
	// unblocks its pending reads; idle handlers drain immediately rather
	// than holding shutdown for the full timeout.
	s.cancelConns()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("shutdown timeout reached with connections still open")
	}

	s.logger.Info("gateway server stopped")
	return shutdownErr
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the HTTP handler serving the gateway's routes. Exposed so
// tests can mount the gateway on their own listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics.Enabled {
		mux.Handle("/metrics", s.deps.Metrics.Handler())
	}
	return mux
}

// handleWebSocket upgrades the request and hands the connection to a new
// Handler running in its own goroutine.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error reply.
		s.logger.Warn("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return
	}

	handler := NewHandler(conn, s.deps)

	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic recovered",
					"remote_addr", conn.RemoteAddr().String(),
					"panic", rec,
				)
				conn.Close()
			}
		}()
		handler.Run(s.connCtx)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","time":%q}`+"\n", time.Now().UTC().Format(time.RFC3339))
}
