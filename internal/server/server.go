package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/config"
	"github.com/BadgerOps/mirrorrank/internal/engine"
	"github.com/BadgerOps/mirrorrank/internal/mirror"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
)

// SpeedTester measures live mirror performance.
type SpeedTester interface {
	SpeedTest(ctx context.Context, urls []string, topN int) []mirror.SpeedResult
}

// Server exposes mirror selection over a JSON and plain-text HTTP API.
type Server struct {
	generator  *engine.Generator
	speed      SpeedTester
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	version    string

	// speedLimiter throttles live speed tests; nil means unlimited.
	speedLimiter *rate.Limiter
}

// NewServer creates a new Server instance.
func NewServer(
	gen *engine.Generator,
	speed SpeedTester,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		generator: gen,
		speed:     speed,
		config:    cfg,
		logger:    logger,
		version:   "dev",
	}
	if n := cfg.Server.SpeedTestPerMinute; n > 0 {
		s.speedLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	return s
}

// SetVersion sets the version reported by /api/status.
func (s *Server) SetVersion(v string) {
	s.version = v
}

// Handler returns the routed HTTP handler. Responses are gzip-compressed
// for clients that accept it.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.setupRoutes())
}

// Start starts the HTTP server on the given listen address.
func (s *Server) Start(listenAddr string) error {
	s.httpServer = &http.Server{
		Addr:         listenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", listenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes registers all HTTP routes on a new ServeMux.
// Uses Go 1.22+ enhanced routing with method prefixes and path variables.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/mirrors", s.handleMirrors)
	mux.HandleFunc("GET /api/mirrorlist", s.handleMirrorlist)
	mux.HandleFunc("POST /api/speedtest", s.handleSpeedTest)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}/mirrors", s.handleRunMirrors)

	return mux
}
