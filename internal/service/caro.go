package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"caro-arena/internal/board"
	"caro-arena/internal/model"
	"caro-arena/internal/pkg/lock"
	"caro-arena/internal/realtime"
	"caro-arena/internal/repository"
)

// Game transition errors surfaced to callers. Every rejected action maps
// to exactly one of these so clients can react specifically.
var (
	ErrRoomNotFound    = errors.New("no game in room")
	ErrGameNotFound    = errors.New("game not found")
	ErrDuplicateRoom   = errors.New("room already has an active game")
	ErrInvalidBet      = errors.New("bet amount must be positive")
	ErrGameFull        = errors.New("game already has two players")
	ErrSelfJoin        = errors.New("cannot join your own game")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrIllegalPosition = errors.New("illegal board position")
	ErrNotPlaying      = errors.New("game is not in progress")
	ErrNotAParticipant = errors.New("player is not part of this game")
	ErrAlreadyFinished = errors.New("game is already over")
	ErrConflict        = errors.New("conflicting concurrent move, refetch and retry")
)

// prizeShareNum/prizeShareDen define the winner's cut of the pot: 90%,
// floored; the remainder is the house fee.
const (
	prizeShareNum = 9
	prizeShareDen = 10
)

// SplitPot computes pot, winner prize and house fee for a per-player bet.
// Integer arithmetic only: prize + fee always equals the pot exactly.
func SplitPot(betAmount int64) (pot, prize, fee int64) {
	pot = 2 * betAmount
	prize = pot * prizeShareNum / prizeShareDen
	fee = pot - prize
	return pot, prize, fee
}

// publisher is the fan-out dependency; delivery is best-effort and never
// blocks a transition.
type publisher interface {
	Publish(event *realtime.Event)
}

// Settings holds the game rules the service runs with.
type Settings struct {
	BoardSize     int
	WinLength     int
	DefaultBet    int64
	WaitingExpiry time.Duration
}

// CaroService is the game state machine with its integrated betting
// ledger. All transitions that move money run the game-state write and the
// wallet mutation in one database transaction; per-game writes are fenced
// by the move count, so concurrent transitions cannot both apply to the
// same board state.
type CaroService struct {
	pool     *pgxpool.Pool
	gameRepo *repository.GameRepository
	moveRepo *repository.MoveRepository
	wallets  *WalletService
	locks    *lock.GameLock
	fanout   publisher
	settings Settings
	logger   zerolog.Logger
}

// NewCaroService creates a new CaroService instance.
func NewCaroService(
	pool *pgxpool.Pool,
	gameRepo *repository.GameRepository,
	moveRepo *repository.MoveRepository,
	wallets *WalletService,
	locks *lock.GameLock,
	fanout publisher,
	settings Settings,
	logger zerolog.Logger,
) *CaroService {
	if settings.BoardSize <= 0 {
		settings.BoardSize = model.DefaultBoardSize
	}
	if settings.WinLength <= 0 {
		settings.WinLength = model.DefaultWinLength
	}
	if settings.DefaultBet <= 0 {
		settings.DefaultBet = model.DefaultBetAmount
	}
	if settings.WaitingExpiry <= 0 {
		settings.WaitingExpiry = 10 * time.Minute
	}
	return &CaroService{
		pool:     pool,
		gameRepo: gameRepo,
		moveRepo: moveRepo,
		wallets:  wallets,
		locks:    locks,
		fanout:   fanout,
		settings: settings,
		logger:   logger.With().Str("component", "caro_service").Logger(),
	}
}

// CreateGame opens a new waiting game in a room, debiting the creator's
// stake atomically with the game insert. If betAmount is zero the
// configured default bet applies.
func (s *CaroService) CreateGame(ctx context.Context, playerID, roomName string, betAmount int64) (*model.GameView, error) {
	if betAmount == 0 {
		betAmount = s.settings.DefaultBet
	}
	if betAmount < 0 {
		return nil, ErrInvalidBet
	}

	// Lazy expiry: a stale waiting game must not squat on the room name.
	if existing, err := s.gameRepo.GetActiveByRoom(ctx, roomName); err == nil {
		if existing.Status == model.StatusWaiting && time.Since(existing.CreatedAt) > s.settings.WaitingExpiry {
			if err := s.expireGame(ctx, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to expire stale game in room: %w", err)
			}
		}
	} else if !errors.Is(err, repository.ErrGameNotFound) {
		return nil, fmt.Errorf("failed to check room: %w", err)
	}

	game := &model.Game{
		ID:        uuid.NewString(),
		RoomName:  roomName,
		Player1:   playerID,
		Board:     board.New(s.settings.BoardSize).Cells(),
		Turn:      model.SymbolX,
		Status:    model.StatusWaiting,
		BetAmount: betAmount,
		BoardSize: s.settings.BoardSize,
		WinLength: s.settings.WinLength,
	}

	err := s.locks.WithLock("room:"+roomName, func() error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			if err := s.gameRepo.CreateTx(ctx, tx, game); err != nil {
				if errors.Is(err, repository.ErrDuplicateRoom) {
					return ErrDuplicateRoom
				}
				return err
			}
			desc := fmt.Sprintf("bet for caro game in room %s", roomName)
			return s.wallets.DebitTx(ctx, tx, playerID, betAmount, model.TxTypeBet, &game.ID, desc)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("game", game.ID).
		Str("room", roomName).
		Str("player", playerID).
		Int64("bet", betAmount).
		Msg("game created")

	s.publishGame(game)
	s.publishRooms(ctx)

	return game.View(), nil
}

// JoinGame seats the second player in a waiting game, debiting their stake
// atomically with the transition to playing.
func (s *CaroService) JoinGame(ctx context.Context, playerID, roomName string) (*model.GameView, error) {
	resolved, err := s.gameRepo.GetActiveByRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to resolve room: %w", err)
	}

	var game *model.Game
	err = s.locks.WithLock(resolved.ID, func() error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			g, err := s.gameRepo.GetActiveByRoomForUpdateTx(ctx, tx, roomName)
			if err != nil {
				if errors.Is(err, repository.ErrGameNotFound) {
					return ErrRoomNotFound
				}
				return err
			}

			if g.Status != model.StatusWaiting || g.Player2 != nil {
				return ErrGameFull
			}
			if g.Player1 == playerID {
				return ErrSelfJoin
			}

			expected := g.TotalMoves
			now := time.Now()
			g.Player2 = &playerID
			g.Status = model.StatusPlaying
			g.StartedAt = &now
			g.TotalPot, g.WinnerPrize, g.HouseFee = SplitPot(g.BetAmount)

			desc := fmt.Sprintf("bet for caro game in room %s", roomName)
			if err := s.wallets.DebitTx(ctx, tx, playerID, g.BetAmount, model.TxTypeBet, &g.ID, desc); err != nil {
				return err
			}

			if err := s.gameRepo.UpdateTx(ctx, tx, g, expected); err != nil {
				if errors.Is(err, repository.ErrStaleGame) {
					return ErrConflict
				}
				return err
			}

			game = g
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("game", game.ID).
		Str("room", roomName).
		Str("player", playerID).
		Int64("pot", game.TotalPot).
		Msg("player joined, game started")

	s.publishGame(game)
	s.publishRooms(ctx)

	return game.View(), nil
}

// MakeMove applies one move for the given player. Validation runs against
// an optimistic snapshot; the fenced update inside the transaction is what
// decides the race, so two concurrent moves at the same move count produce
// exactly one success and one ErrConflict. On a win the prize credit
// commits with the finished status; a draw pays nobody.
func (s *CaroService) MakeMove(ctx context.Context, playerID, gameID string, row, col int) (*model.GameView, error) {
	g, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	if g.Status != model.StatusPlaying {
		return nil, ErrNotPlaying
	}
	symbol := g.SymbolOf(playerID)
	if symbol == "" {
		return nil, ErrNotAParticipant
	}
	if symbol != g.Turn {
		return nil, ErrNotYourTurn
	}

	grid := board.FromCells(g.Board, g.BoardSize)
	if !grid.IsLegalMove(row, col) {
		return nil, ErrIllegalPosition
	}
	if err := grid.Apply(row, col, symbol); err != nil {
		return nil, ErrIllegalPosition
	}

	expected := g.TotalMoves
	g.Board = grid.Cells()
	g.TotalMoves++

	move := &model.Move{
		GameID: g.ID,
		Player: playerID,
		Row:    row,
		Col:    col,
		Symbol: symbol,
		Seq:    g.TotalMoves,
	}

	var winnerPaid bool
	switch {
	case grid.WinnerAt(row, col, g.WinLength) != "":
		now := time.Now()
		g.Status = model.StatusFinished
		g.Winner = &playerID
		g.FinishedAt = &now
		winnerPaid = true
	case grid.IsFull():
		// Draw: stakes are forfeit, no payout either way.
		now := time.Now()
		g.Status = model.StatusFinished
		g.FinishedAt = &now
	default:
		g.Turn = flip(symbol)
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.gameRepo.UpdateTx(ctx, tx, g, expected); err != nil {
			if errors.Is(err, repository.ErrStaleGame) {
				return ErrConflict
			}
			return err
		}
		if err := s.moveRepo.AppendTx(ctx, tx, move); err != nil {
			return err
		}
		if winnerPaid {
			desc := fmt.Sprintf("won caro game in room %s", g.RoomName)
			return s.wallets.CreditTx(ctx, tx, playerID, g.WinnerPrize, model.TxTypeWin, &g.ID, desc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if g.Status == model.StatusFinished {
		event := s.logger.Info().
			Str("game", g.ID).
			Str("room", g.RoomName).
			Int("moves", g.TotalMoves)
		if g.Winner != nil {
			event.Str("winner", *g.Winner).Int64("prize", g.WinnerPrize)
		}
		event.Msg("game finished")
		s.publishRooms(ctx)
	}

	s.publishGame(g)

	return g.View(), nil
}

// AbandonGame ends a game early. From waiting the sole player gets a full
// refund; from playing the opponent is declared winner and paid the prize,
// the abandoning player's stake stays in the pot.
func (s *CaroService) AbandonGame(ctx context.Context, playerID, roomName string) (*model.GameView, error) {
	resolved, err := s.gameRepo.GetActiveByRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, s.classifyMissingRoom(ctx, roomName)
		}
		return nil, fmt.Errorf("failed to resolve room: %w", err)
	}

	if !resolved.IsParticipant(playerID) {
		return nil, ErrNotAParticipant
	}

	var game *model.Game
	err = s.locks.WithLock(resolved.ID, func() error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			g, err := s.gameRepo.GetByIDForUpdateTx(ctx, tx, resolved.ID)
			if err != nil {
				return err
			}
			if !g.IsActive() {
				return ErrAlreadyFinished
			}
			if !g.IsParticipant(playerID) {
				return ErrNotAParticipant
			}

			expected := g.TotalMoves
			now := time.Now()
			g.FinishedAt = &now

			switch g.Status {
			case model.StatusWaiting:
				desc := fmt.Sprintf("refund for abandoned caro game in room %s", roomName)
				if err := s.wallets.CreditTx(ctx, tx, playerID, g.BetAmount, model.TxTypeRefund, &g.ID, desc); err != nil {
					return err
				}
			case model.StatusPlaying:
				opponent := g.Opponent(playerID)
				g.Winner = opponent
				desc := fmt.Sprintf("opponent abandoned caro game in room %s", roomName)
				if err := s.wallets.CreditTx(ctx, tx, *opponent, g.WinnerPrize, model.TxTypeWin, &g.ID, desc); err != nil {
					return err
				}
			}

			g.Status = model.StatusAbandoned
			if err := s.gameRepo.UpdateTx(ctx, tx, g, expected); err != nil {
				if errors.Is(err, repository.ErrStaleGame) {
					return ErrConflict
				}
				return err
			}

			game = g
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("game", game.ID).
		Str("room", roomName).
		Str("player", playerID).
		Msg("game abandoned")

	s.publishGame(game)
	s.publishRooms(ctx)

	return game.View(), nil
}

// GetGame returns the active game occupying a room.
func (s *CaroService) GetGame(ctx context.Context, roomName string) (*model.GameView, error) {
	g, err := s.gameRepo.GetActiveByRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g.View(), nil
}

// GetGameByID returns any game, active or terminal.
func (s *CaroService) GetGameByID(ctx context.Context, gameID string) (*model.GameView, error) {
	g, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g.View(), nil
}

// Moves returns a game's move log in sequence order.
func (s *CaroService) Moves(ctx context.Context, gameID string) ([]*model.Move, error) {
	if _, err := s.gameRepo.GetByID(ctx, gameID); err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return s.moveRepo.ListByGame(ctx, gameID)
}

// ActiveRooms lists rooms with a waiting or playing game.
func (s *CaroService) ActiveRooms(ctx context.Context) ([]*model.RoomSummary, error) {
	return s.gameRepo.ActiveRooms(ctx)
}

// ExpireStale abandons every waiting game older than the expiry threshold,
// refunding the sole participant and freeing the room names for reuse.
// Returns the number of games expired.
func (s *CaroService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.settings.WaitingExpiry)
	ids, err := s.gameRepo.StaleWaitingIDs(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if err := s.expireGame(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("game", id).Msg("failed to expire stale game")
			continue
		}
		expired++
	}

	if expired > 0 {
		s.publishRooms(ctx)
	}

	return expired, nil
}

// expireGame runs the expiry transition for one waiting game: full refund
// to the creator, status abandoned. The row lock re-check makes the sweep
// safe against a join racing the expiry.
func (s *CaroService) expireGame(ctx context.Context, gameID string) error {
	var game *model.Game
	err := s.locks.WithLock(gameID, func() error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			g, err := s.gameRepo.GetByIDForUpdateTx(ctx, tx, gameID)
			if err != nil {
				return err
			}
			if g.Status != model.StatusWaiting {
				return nil
			}

			expected := g.TotalMoves
			now := time.Now()
			g.Status = model.StatusAbandoned
			g.FinishedAt = &now

			desc := fmt.Sprintf("refund for expired caro game in room %s", g.RoomName)
			if err := s.wallets.CreditTx(ctx, tx, g.Player1, g.BetAmount, model.TxTypeRefund, &g.ID, desc); err != nil {
				return err
			}
			if err := s.gameRepo.UpdateTx(ctx, tx, g, expected); err != nil {
				return err
			}

			game = g
			return nil
		})
	})
	if err != nil {
		return err
	}

	if game != nil {
		s.logger.Info().
			Str("game", game.ID).
			Str("room", game.RoomName).
			Str("player", game.Player1).
			Msg("stale waiting game expired, stake refunded")
		s.publishGame(game)
	}

	return nil
}

// classifyMissingRoom distinguishes a room that never had a game from one
// whose game already ended.
func (s *CaroService) classifyMissingRoom(ctx context.Context, roomName string) error {
	latest, err := s.gameRepo.GetLatestByRoom(ctx, roomName)
	if err != nil {
		return ErrRoomNotFound
	}
	if !latest.IsActive() {
		return ErrAlreadyFinished
	}
	return ErrRoomNotFound
}

// inTx runs fn inside one database transaction, committing on nil and
// rolling back otherwise. This is the shared commit boundary that keeps
// game-state writes and wallet mutations atomic.
func (s *CaroService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *CaroService) publishGame(g *model.Game) {
	if s.fanout == nil {
		return
	}
	s.fanout.Publish(realtime.GameState(g.View()))
}

func (s *CaroService) publishRooms(ctx context.Context) {
	if s.fanout == nil {
		return
	}
	rooms, err := s.gameRepo.ActiveRooms(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load room list for fan-out")
		return
	}
	s.fanout.Publish(realtime.RoomsUpdate(rooms))
}

func flip(symbol string) string {
	if symbol == model.SymbolX {
		return model.SymbolO
	}
	return model.SymbolX
}
