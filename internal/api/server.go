package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jamhan/predictionmarket/internal/config"
	"github.com/jamhan/predictionmarket/internal/engine"
)

// Server runs the HTTP + WebSocket API surface over the engine facade
// (spec.md §6).
type Server struct {
	cfg      config.APIConfig
	engine   *engine.Engine
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg config.APIConfig, eng *engine.Engine, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(eng, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("POST /orders", handlers.HandleSubmitOrder)
	mux.HandleFunc("DELETE /orders/{id}", handlers.HandleCancelOrder)
	mux.HandleFunc("GET /markets/{id}/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("GET /ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		engine:   eng,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the WebSocket hub and the HTTP server. It blocks until the
// server stops.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
