package promexporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	exporter "github.com/danweinerdev/saltstack-exporter"
)

// Server serves the root page, the health check, and the metrics endpoint.
type Server struct {
	cfg      exporter.ListenConfig
	renderer *Renderer
	logger   *slog.Logger
	server   *http.Server

	mu      sync.RWMutex
	addr    net.Addr
	healthy bool
}

// New creates a server exposing the snapshots held by source.
func New(cfg exporter.ListenConfig, source SnapshotSource, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	renderer, err := NewRenderer(source)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger,
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthcheck", s.handleHealth)
	mux.HandleFunc(s.cfg.MetricsPath, s.handleMetrics)
	return mux
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	s.addr = ln.Addr()
	s.server = srv

	go func() {
		s.logger.Info("serving metrics", "addr", ln.Addr().String(), "path", s.cfg.MetricsPath)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
			s.mu.Lock()
			s.healthy = false
			s.mu.Unlock()
		}
	}()

	s.healthy = true
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Close gracefully shuts the server down.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error("error shutting down HTTP server", "error", err)
			return err
		}
		s.server = nil
	}

	s.healthy = false
	s.logger.Info("HTTP server stopped")
	return nil
}

// Healthy returns true while the server is serving.
func (s *Server) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	path := html.EscapeString(s.cfg.MetricsPath)
	fmt.Fprintf(w, `<h1>Saltstack Collector</h1><a href="%s">Metrics</a>`, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := s.renderer.Render(&buf); err != nil {
		s.logger.Error("error generating metric output", "error", err)
		http.Error(w, "error generating metric output", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", s.renderer.ContentType())
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(buf.Bytes())
	}
}
