// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"caro-arena/internal/model"
)

// Common errors for game persistence.
var (
	ErrGameNotFound  = errors.New("game not found")
	ErrDuplicateRoom = errors.New("room already has an active game")
	ErrStaleGame     = errors.New("game was modified concurrently")
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

const gameColumns = `id, room_name, player1, player2, board, current_turn, status, winner,
		bet_amount, total_pot, winner_prize, house_fee, board_size, win_length, total_moves,
		created_at, updated_at, started_at, finished_at`

// GameRepository handles game data persistence.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

// row abstracts pgx.Row scanning for pool and transaction queries.
type row interface {
	Scan(dest ...any) error
}

func scanGame(r row) (*model.Game, error) {
	var g model.Game
	var boardJSON []byte
	err := r.Scan(
		&g.ID,
		&g.RoomName,
		&g.Player1,
		&g.Player2,
		&boardJSON,
		&g.Turn,
		&g.Status,
		&g.Winner,
		&g.BetAmount,
		&g.TotalPot,
		&g.WinnerPrize,
		&g.HouseFee,
		&g.BoardSize,
		&g.WinLength,
		&g.TotalMoves,
		&g.CreatedAt,
		&g.UpdatedAt,
		&g.StartedAt,
		&g.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to scan game: %w", err)
	}
	if err := json.Unmarshal(boardJSON, &g.Board); err != nil {
		return nil, fmt.Errorf("failed to decode board: %w", err)
	}
	return &g, nil
}

// CreateTx inserts a new game inside the caller's transaction. Returns
// ErrDuplicateRoom if an active game already occupies the room name; the
// partial unique index serializes concurrent creators so exactly one wins.
func (r *GameRepository) CreateTx(ctx context.Context, tx pgx.Tx, g *model.Game) error {
	boardJSON, err := json.Marshal(g.Board)
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}

	const query = `
		INSERT INTO games (id, room_name, player1, board, current_turn, status,
			bet_amount, board_size, win_length, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		g.ID, g.RoomName, g.Player1, boardJSON, g.Turn, g.Status,
		g.BetAmount, g.BoardSize, g.WinLength,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateRoom
		}
		return fmt.Errorf("failed to create game: %w", err)
	}

	return nil
}

// GetByID retrieves a game by its identifier.
func (r *GameRepository) GetByID(ctx context.Context, id string) (*model.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`
	return scanGame(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByRoom retrieves the waiting or playing game occupying a room name.
func (r *GameRepository) GetActiveByRoom(ctx context.Context, roomName string) (*model.Game, error) {
	query := `SELECT ` + gameColumns + `
		FROM games
		WHERE room_name = $1 AND status IN ('waiting', 'playing')`
	return scanGame(r.pool.QueryRow(ctx, query, roomName))
}

// GetLatestByRoom retrieves the most recent game for a room regardless of
// status. Used to distinguish "no such room" from "game already over".
func (r *GameRepository) GetLatestByRoom(ctx context.Context, roomName string) (*model.Game, error) {
	query := `SELECT ` + gameColumns + `
		FROM games
		WHERE room_name = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return scanGame(r.pool.QueryRow(ctx, query, roomName))
}

// GetByIDForUpdateTx retrieves a game by ID and takes a row lock on it so
// no other transaction can transition the same game concurrently.
func (r *GameRepository) GetByIDForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*model.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1 FOR UPDATE`
	return scanGame(tx.QueryRow(ctx, query, id))
}

// GetActiveByRoomForUpdateTx retrieves the active game for a room with a row lock.
func (r *GameRepository) GetActiveByRoomForUpdateTx(ctx context.Context, tx pgx.Tx, roomName string) (*model.Game, error) {
	query := `SELECT ` + gameColumns + `
		FROM games
		WHERE room_name = $1 AND status IN ('waiting', 'playing')
		FOR UPDATE`
	return scanGame(tx.QueryRow(ctx, query, roomName))
}

// UpdateTx writes the game's mutable state inside the caller's transaction.
// expectedMoves is the fencing token: the update only applies if the stored
// move count still matches, otherwise ErrStaleGame is returned and the
// caller must refetch and retry.
func (r *GameRepository) UpdateTx(ctx context.Context, tx pgx.Tx, g *model.Game, expectedMoves int) error {
	boardJSON, err := json.Marshal(g.Board)
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}

	const query = `
		UPDATE games
		SET player2 = $2, board = $3, current_turn = $4, status = $5, winner = $6,
			total_pot = $7, winner_prize = $8, house_fee = $9, total_moves = $10,
			started_at = $11, finished_at = $12, updated_at = NOW()
		WHERE id = $1 AND total_moves = $13
	`

	tag, err := tx.Exec(ctx, query,
		g.ID, g.Player2, boardJSON, g.Turn, g.Status, g.Winner,
		g.TotalPot, g.WinnerPrize, g.HouseFee, g.TotalMoves,
		g.StartedAt, g.FinishedAt, expectedMoves,
	)
	if err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleGame
	}

	return nil
}

// ActiveRooms lists all waiting and playing games, newest first.
func (r *GameRepository) ActiveRooms(ctx context.Context) ([]*model.RoomSummary, error) {
	const query = `
		SELECT room_name, id, player1, player2, status, bet_amount, created_at
		FROM games
		WHERE status IN ('waiting', 'playing')
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.RoomSummary
	for rows.Next() {
		var room model.RoomSummary
		err := rows.Scan(
			&room.RoomName,
			&room.GameID,
			&room.Player1,
			&room.Player2,
			&room.Status,
			&room.BetAmount,
			&room.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, &room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}

	return rooms, nil
}

// StaleWaitingIDs lists the IDs of waiting games created before the cutoff.
// Only IDs are returned; the expiry transition refetches each game with a
// row lock before acting on it.
func (r *GameRepository) StaleWaitingIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	const query = `
		SELECT id FROM games
		WHERE status = 'waiting' AND created_at < $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale games: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan game id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale games: %w", err)
	}

	return ids, nil
}
