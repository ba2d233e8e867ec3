package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically expires stale waiting games so abandoned rooms do
// not stay occupied forever. Expiry also happens lazily on room reuse, the
// sweep guarantees the refund lands even for rooms nobody touches again.
type Sweeper struct {
	caro     *CaroService
	interval time.Duration
	logger   zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(caro *CaroService, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		caro:     caro,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight sweep, if any,
// to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")

	for {
		select {
		case <-ticker.C:
			n, err := s.caro.ExpireStale(ctx)
			if err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("expired", n).Msg("expired stale waiting games")
			}
		case <-s.stop:
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		}
	}
}
