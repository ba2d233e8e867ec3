package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caro-arena/internal/model"
)

// MoveRepository handles the append-only move log.
type MoveRepository struct {
	pool *pgxpool.Pool
}

// NewMoveRepository creates a new MoveRepository instance.
func NewMoveRepository(pool *pgxpool.Pool) *MoveRepository {
	return &MoveRepository{pool: pool}
}

// AppendTx records one move inside the caller's transaction. The unique
// constraints on (game_id, seq) and (game_id, row, col) back the move-log
// invariants at the storage level.
func (r *MoveRepository) AppendTx(ctx context.Context, tx pgx.Tx, m *model.Move) error {
	const query = `
		INSERT INTO moves (game_id, player, row_idx, col_idx, symbol, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query, m.GameID, m.Player, m.Row, m.Col, m.Symbol, m.Seq).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append move: %w", err)
	}

	return nil
}

// ListByGame returns a game's moves in sequence order.
func (r *MoveRepository) ListByGame(ctx context.Context, gameID string) ([]*model.Move, error) {
	const query = `
		SELECT id, game_id, player, row_idx, col_idx, symbol, seq, created_at
		FROM moves
		WHERE game_id = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moves: %w", err)
	}
	defer rows.Close()

	var moves []*model.Move
	for rows.Next() {
		var m model.Move
		err := rows.Scan(&m.ID, &m.GameID, &m.Player, &m.Row, &m.Col, &m.Symbol, &m.Seq, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		moves = append(moves, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moves: %w", err)
	}

	return moves, nil
}
