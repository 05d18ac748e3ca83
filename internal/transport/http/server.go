package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"omnichannel/internal/infrastructure"
	"omnichannel/internal/middleware"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server is the status server running alongside a pipeline run
type Server struct {
	Status *StatusHandler

	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer builds the status server. metrics serves /metrics and may be
// nil when no Prometheus exporter is configured.
func NewServer(addr, service string, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = infrastructure.WithComponent(logger, "status-server")

	s := &Server{
		Status: NewStatusHandler(service, logger),
		logger: logger,
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.routes(metrics),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

func (s *Server) routes(metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))

	r.Get("/healthz", s.Status.Health)
	r.Route("/status", func(r chi.Router) {
		r.Get("/", s.Status.Status)
		r.Get("/{step}", s.Status.StepStatus)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start binds the address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	s.listener = ln

	s.logger.InfoContext(ctx, "status server listening", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			infrastructure.WithError(s.logger, err).Error("status server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}
