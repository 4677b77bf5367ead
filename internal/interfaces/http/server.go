// Package http serves the discovery facade: trigger, status, contender
// reads, health and Prometheus metrics.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/amc-trader/discovery/internal/interfaces/http/handlers"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig binds locally on 8080.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the facade HTTP server. All discovery routes are JSON.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers.Handlers
	config   ServerConfig
}

// NewServer builds the server and its routes.
func NewServer(config ServerConfig, h *handlers.Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		config:   config,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/discovery/trigger", s.handlers.Trigger).Methods(http.MethodPost)
	s.router.HandleFunc("/discovery/status", s.handlers.Status).Methods(http.MethodGet)
	s.router.HandleFunc("/discovery/contenders", s.handlers.Contenders).Methods(http.MethodGet)
	s.router.HandleFunc("/discovery/squeeze-candidates", s.handlers.SqueezeCandidates).Methods(http.MethodGet)
	s.router.HandleFunc("/discovery/health", s.handlers.Health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
