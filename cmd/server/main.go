// Package main is the entry point for the caro arena server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"caro-arena/internal/config"
	"caro-arena/internal/pkg/db"
	"caro-arena/internal/pkg/lock"
	"caro-arena/internal/realtime"
	"caro-arena/internal/repository"
	"caro-arena/internal/server"
	"caro-arena/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	gameRepo := repository.NewGameRepository(dbPool.Pool)
	moveRepo := repository.NewMoveRepository(dbPool.Pool)
	walletRepo := repository.NewWalletRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)

	// Initialize realtime fan-out: local hub always, Redis broadcast when
	// configured so multiple instances see each other's events.
	hub := realtime.NewHub(log.Logger)
	var broadcast *realtime.RedisBroadcaster
	if cfg.Redis.Addr != "" {
		broadcast, err = realtime.NewRedisBroadcaster(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer broadcast.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis event broadcast enabled")
	}
	fanout := realtime.NewFanout(hub, broadcast)

	// Initialize services
	gameLock := lock.NewGameLock()
	walletService := service.NewWalletService(dbPool.Pool, walletRepo, txRepo, log.Logger)
	caroService := service.NewCaroService(
		dbPool.Pool,
		gameRepo,
		moveRepo,
		walletService,
		gameLock,
		fanout,
		service.Settings{
			BoardSize:     cfg.Game.BoardSize,
			WinLength:     cfg.Game.WinLength,
			DefaultBet:    cfg.Game.DefaultBet,
			WaitingExpiry: cfg.Game.WaitingExpiry,
		},
		log.Logger,
	)

	// Start the stale-game sweeper
	sweeper := service.NewSweeper(caroService, cfg.Game.SweepInterval, log.Logger)
	sweeper.Start(ctx)

	// Initialize HTTP server
	srv := server.New(cfg.Server, caroService, walletService, hub, dbPool, log.Logger)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Info().Msg("Server is starting...")
		errChan <- srv.Start()
	}()

	// Wait for shutdown signal or server failure
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
		return
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	sweeper.Stop()
	fanout.Close()
	log.Info().Msg("Server stopped gracefully")
}
