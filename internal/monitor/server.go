// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package monitor serves a live session over HTTP: JSON endpoints for state
// and commands under /api/v1 and a WebSocket event stream.
package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/cfpilot/internal/events"
	"github.com/wingedpig/cfpilot/internal/monitor/handlers"
	"github.com/wingedpig/cfpilot/internal/monitor/middleware"
	"github.com/wingedpig/cfpilot/internal/monitor/version"
)

// ServerConfig holds configuration for the monitor server.
type ServerConfig struct {
	Host string
	Port int
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies holds what the handlers serve.
type Dependencies struct {
	Session handlers.Session
	Bus     events.EventBus
	Logger  *slog.Logger
}

// NewRouter creates the monitor router.
func NewRouter(deps Dependencies) *mux.Router {
	r, _ := newRouter(deps)
	return r
}

func newRouter(deps Dependencies) (*mux.Router, *handlers.EventHandler) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(version.Middleware)

	sessionHandler := handlers.NewSessionHandler(deps.Session)
	api.HandleFunc("/session", sessionHandler.Get).Methods("GET")
	api.HandleFunc("/stats", sessionHandler.Stats).Methods("GET")
	api.HandleFunc("/inventory", sessionHandler.Inventory).Methods("GET")
	api.HandleFunc("/items/tag/{tag}", sessionHandler.Item).Methods("GET")
	api.HandleFunc("/items/{location}", sessionHandler.Items).Methods("GET")

	commandHandler := handlers.NewCommandHandler(deps.Session)
	api.HandleFunc("/commands", commandHandler.List).Methods("GET")
	api.HandleFunc("/commands", commandHandler.Dispatch).Methods("POST")
	api.HandleFunc("/commands/{seq}", commandHandler.Get).Methods("GET")
	api.HandleFunc("/settle", commandHandler.Settle).Methods("POST")

	eventHandler := handlers.NewEventHandler(deps.Bus, logger)
	api.HandleFunc("/events", eventHandler.History).Methods("GET")
	api.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")

	return r, eventHandler
}

// Server is the monitor HTTP server.
type Server struct {
	router       *mux.Router
	cfg          ServerConfig
	logger       *slog.Logger
	server       *http.Server
	eventHandler *handlers.EventHandler
}

// NewServer creates a new monitor server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	router, eventHandler := newRouter(deps)
	return &Server{
		router:       router,
		cfg:          cfg,
		logger:       deps.Logger,
		eventHandler: eventHandler,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("monitor listening", "addr", "http://"+ln.Addr().String())
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes event streams and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.eventHandler.Shutdown()
	s.logger.Info("monitor shutting down")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	return s.server.Shutdown(shutdownCtx)
}
