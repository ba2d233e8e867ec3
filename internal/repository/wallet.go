package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caro-arena/internal/model"
)

// Common errors for wallet operations.
var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// WalletRepository handles wallet balances. Balance mutations happen only
// through DebitTx/CreditTx inside a transaction shared with the game-state
// write, so money movement and game transitions commit or fail together.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new WalletRepository instance.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// Create creates a wallet with the given opening balance. Returns the
// wallet and false if it already existed.
func (r *WalletRepository) Create(ctx context.Context, playerID string, balance int64) (*model.Wallet, bool, error) {
	const query = `
		INSERT INTO wallets (player_id, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (player_id) DO NOTHING
		RETURNING player_id, balance, created_at, updated_at
	`

	var w model.Wallet
	err := r.pool.QueryRow(ctx, query, playerID, balance).
		Scan(&w.PlayerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetByPlayer(ctx, playerID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create wallet: %w", err)
	}

	return &w, true, nil
}

// CreateTx creates a wallet inside the caller's transaction, so the
// opening balance and its ledger record commit together. Returns the
// wallet and false if it already existed.
func (r *WalletRepository) CreateTx(ctx context.Context, tx pgx.Tx, playerID string, balance int64) (*model.Wallet, bool, error) {
	const query = `
		INSERT INTO wallets (player_id, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (player_id) DO NOTHING
		RETURNING player_id, balance, created_at, updated_at
	`

	var w model.Wallet
	err := tx.QueryRow(ctx, query, playerID, balance).
		Scan(&w.PlayerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		const existingQuery = `
			SELECT player_id, balance, created_at, updated_at
			FROM wallets
			WHERE player_id = $1
		`
		var existing model.Wallet
		if err := tx.QueryRow(ctx, existingQuery, playerID).
			Scan(&existing.PlayerID, &existing.Balance, &existing.CreatedAt, &existing.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("failed to get wallet: %w", err)
		}
		return &existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create wallet: %w", err)
	}

	return &w, true, nil
}

// GetByPlayer retrieves a wallet by its owner.
func (r *WalletRepository) GetByPlayer(ctx context.Context, playerID string) (*model.Wallet, error) {
	const query = `
		SELECT player_id, balance, created_at, updated_at
		FROM wallets
		WHERE player_id = $1
	`

	var w model.Wallet
	err := r.pool.QueryRow(ctx, query, playerID).
		Scan(&w.PlayerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &w, nil
}

// DebitTx subtracts amount from the wallet inside the caller's transaction
// and returns the resulting balance. The balance predicate in the UPDATE
// guarantees the balance never goes negative; a wallet without cover yields
// ErrInsufficientFunds and leaves the row untouched.
func (r *WalletRepository) DebitTx(ctx context.Context, tx pgx.Tx, playerID string, amount int64) (int64, error) {
	const query = `
		UPDATE wallets
		SET balance = balance - $2, updated_at = NOW()
		WHERE player_id = $1 AND balance >= $2
		RETURNING balance
	`

	var balance int64
	err := tx.QueryRow(ctx, query, playerID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing wallet from one without cover.
		var exists bool
		checkErr := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM wallets WHERE player_id = $1)`, playerID).Scan(&exists)
		if checkErr != nil {
			return 0, fmt.Errorf("failed to check wallet existence: %w", checkErr)
		}
		if !exists {
			return 0, ErrWalletNotFound
		}
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit wallet: %w", err)
	}

	return balance, nil
}

// CreditTx adds amount to the wallet inside the caller's transaction and
// returns the resulting balance.
func (r *WalletRepository) CreditTx(ctx context.Context, tx pgx.Tx, playerID string, amount int64) (int64, error) {
	const query = `
		UPDATE wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE player_id = $1
		RETURNING balance
	`

	var balance int64
	err := tx.QueryRow(ctx, query, playerID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, fmt.Errorf("failed to credit wallet: %w", err)
	}

	return balance, nil
}
