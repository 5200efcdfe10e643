// Package server provides the operational HTTP surface: health and metrics
// endpoints plus a live WebSocket feed of knowledge-base mutations.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/config"
	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/pkg/types"
)

// Server hosts /healthz, /metrics and the /ws event feed.
type Server struct {
	cfg    config.ServerConfig
	hub    *Hub
	http   *http.Server
	logger zerolog.Logger
}

// New creates the server and its WebSocket hub.
func New(cfg config.ServerConfig, logger zerolog.Logger) *Server {
	hub := NewHub(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", hub)

	return &Server{
		cfg: cfg,
		hub: hub,
		http: &http.Server{
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Hub exposes the feed hub for direct broadcasts.
func (s *Server) Hub() *Hub { return s.hub }

// Subscribe relays knowledge-base mutation events onto the WebSocket feed.
func (s *Server) Subscribe(bus *events.Bus) {
	bus.OnEntityCreated(func(ctx context.Context, entity *types.Entity) {
		s.hub.Broadcast("entity.created", entity)
	})
	bus.OnEntityUpdated(func(ctx context.Context, before, after *types.Entity) {
		s.hub.Broadcast("entity.updated", after)
	})
	bus.OnEntityDeleting(func(ctx context.Context, entity *types.Entity) error {
		s.hub.Broadcast("entity.deleted", entity)
		return nil
	})
	bus.OnValueCreated(func(ctx context.Context, value *types.Value) {
		s.hub.Broadcast("value.created", value)
	})
	bus.OnValueUpdated(func(ctx context.Context, before, after *types.Value) {
		s.hub.Broadcast("value.updated", after)
	})
	bus.OnValueDeleting(func(ctx context.Context, value *types.Value) error {
		s.hub.Broadcast("value.deleted", value)
		return nil
	})
}

// Start listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully. It returns the actual listen address, useful
// with port 0 in tests.
func (s *Server) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	addr := listener.Addr().String()

	go s.hub.Run()

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("http server shutdown failed")
		}
		s.hub.Stop()
	}()

	s.logger.Info().Str("addr", addr).Msg("http server listening")
	return addr, nil
}
