package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caro-arena/internal/model"
)

// TransactionRepository handles the immutable wallet transaction log.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// CreateTx records a balance change inside the caller's transaction so the
// ledger entry commits together with the balance mutation it describes.
func (r *TransactionRepository) CreateTx(ctx context.Context, tx pgx.Tx, wt *model.WalletTransaction) error {
	const query = `
		INSERT INTO wallet_transactions (player_id, amount, balance_after, type, description, game_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		wt.PlayerID, wt.Amount, wt.BalanceAfter, wt.Type, wt.Description, wt.GameID,
	).Scan(&wt.ID, &wt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}

	return nil
}

// GetByPlayer retrieves a player's transactions, newest first.
func (r *TransactionRepository) GetByPlayer(ctx context.Context, playerID string, limit int) ([]*model.WalletTransaction, error) {
	const query = `
		SELECT id, player_id, amount, balance_after, type, description, game_id, created_at
		FROM wallet_transactions
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.WalletTransaction
	for rows.Next() {
		var wt model.WalletTransaction
		err := rows.Scan(
			&wt.ID,
			&wt.PlayerID,
			&wt.Amount,
			&wt.BalanceAfter,
			&wt.Type,
			&wt.Description,
			&wt.GameID,
			&wt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		transactions = append(transactions, &wt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet transactions: %w", err)
	}

	return transactions, nil
}

// GetByGame retrieves every ledger entry tied to a game, oldest first.
// Useful for auditing a game's full money movement.
func (r *TransactionRepository) GetByGame(ctx context.Context, gameID string) ([]*model.WalletTransaction, error) {
	const query = `
		SELECT id, player_id, amount, balance_after, type, description, game_id, created_at
		FROM wallet_transactions
		WHERE game_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.WalletTransaction
	for rows.Next() {
		var wt model.WalletTransaction
		err := rows.Scan(
			&wt.ID,
			&wt.PlayerID,
			&wt.Amount,
			&wt.BalanceAfter,
			&wt.Type,
			&wt.Description,
			&wt.GameID,
			&wt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		transactions = append(transactions, &wt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet transactions: %w", err)
	}

	return transactions, nil
}
