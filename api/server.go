// Package api provides the public HTTP surface: the widget chat endpoint
// and operational probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"
)

// Server is the widget-facing HTTP server.
type Server struct {
	handler http.Handler
	logger  *slog.Logger
}

// ServerConfig contains the dependencies for the HTTP server.
type ServerConfig struct {
	Logger *slog.Logger
	Engine Responder
	Stores StoreResolver
	DB     Pinger
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Stores == nil {
		return nil, errors.New("store resolver is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("database pinger is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mux := http.NewServeMux()

	chat := &chatHandler{engine: cfg.Engine, stores: cfg.Stores, logger: cfg.Logger}
	health := &healthHandler{db: cfg.DB}

	mux.HandleFunc("GET /healthz", health.live)
	mux.HandleFunc("GET /readyz", health.ready)

	// CORS preflights never reach the mux; corsMiddleware answers every
	// OPTIONS request before routing.
	mux.HandleFunc("POST /v1/chat", chat.handleMessage)

	// Recovery -> Logging -> CORS -> Routes, assembled once.
	handler := recoveryMiddleware(cfg.Logger)(loggingMiddleware(cfg.Logger)(corsMiddleware(mux)))

	return &Server{handler: handler, logger: cfg.Logger}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	s.handler.ServeHTTP(w, r)
}
