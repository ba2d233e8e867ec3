// Package server exposes the game service over HTTP and WebSocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"caro-arena/internal/config"
	"caro-arena/internal/realtime"
	"caro-arena/internal/service"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server wires the HTTP routes to the game and wallet services.
type Server struct {
	caro         *service.CaroService
	wallets      *service.WalletService
	hub          *realtime.Hub
	health       HealthChecker
	logger       zerolog.Logger
	http         *http.Server
	writeTimeout time.Duration
}

// New creates a Server listening on the configured address.
func New(cfg config.ServerConfig, caro *service.CaroService, wallets *service.WalletService, hub *realtime.Hub, health HealthChecker, logger zerolog.Logger) *Server {
	s := &Server{
		caro:         caro,
		wallets:      wallets,
		hub:          hub,
		health:       health,
		logger:       logger.With().Str("component", "server").Logger(),
		writeTimeout: cfg.WriteTimeout,
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("POST /api/games/{room}/join", s.handleJoinGame)
	mux.HandleFunc("POST /api/games/{id}/moves", s.handleMakeMove)
	mux.HandleFunc("POST /api/games/{room}/abandon", s.handleAbandonGame)
	mux.HandleFunc("GET /api/games/{room}", s.handleGetGame)
	mux.HandleFunc("GET /api/games/{id}/moves", s.handleListMoves)
	mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	mux.HandleFunc("GET /api/wallet", s.handleGetWallet)
	mux.HandleFunc("GET /api/wallet/transactions", s.handleWalletTransactions)
	mux.HandleFunc("GET /ws/rooms/{room}", s.handleRoomSocket)
	mux.HandleFunc("GET /ws/rooms", s.handleRoomListSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// No WriteTimeout: it would cut long-lived websocket streams. The
	// websocket handlers set their own per-write deadlines.
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called; a graceful shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}
