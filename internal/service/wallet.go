// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"caro-arena/internal/model"
	"caro-arena/internal/repository"
)

// Common errors for wallet operations.
var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// WalletService is the betting ledger consumed by the game core. Every
// balance change is paired with an immutable transaction record in the
// same database transaction, so game-state transitions and money movement
// commit or fail as one unit.
type WalletService struct {
	pool       *pgxpool.Pool
	walletRepo *repository.WalletRepository
	txRepo     *repository.TransactionRepository
	logger     zerolog.Logger
}

// NewWalletService creates a new WalletService instance.
func NewWalletService(
	pool *pgxpool.Pool,
	walletRepo *repository.WalletRepository,
	txRepo *repository.TransactionRepository,
	logger zerolog.Logger,
) *WalletService {
	return &WalletService{
		pool:       pool,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		logger:     logger.With().Str("component", "wallet_service").Logger(),
	}
}

// EnsureWallet creates a wallet with the opening balance if the player has
// none. The wallet row and its opening ledger record are written in one
// transaction. Returns the wallet and whether it was newly created.
func (s *WalletService) EnsureWallet(ctx context.Context, playerID string) (*model.Wallet, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	wallet, created, err := s.walletRepo.CreateTx(ctx, tx, playerID, model.InitialBalance)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	if created {
		record := &model.WalletTransaction{
			PlayerID:     playerID,
			Amount:       model.InitialBalance,
			BalanceAfter: wallet.Balance,
			Type:         model.TxTypeInitial,
			Description:  "opening balance",
		}
		if err := s.txRepo.CreateTx(ctx, tx, record); err != nil {
			return nil, false, fmt.Errorf("failed to record opening balance: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if created {
		s.logger.Info().Str("player", playerID).Int64("balance", wallet.Balance).Msg("wallet created")
	}

	return wallet, created, nil
}

// Balance retrieves a player's current balance.
func (s *WalletService) Balance(ctx context.Context, playerID string) (int64, error) {
	wallet, err := s.walletRepo.GetByPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return 0, ErrWalletNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return wallet.Balance, nil
}

// History retrieves a player's ledger entries, newest first.
func (s *WalletService) History(ctx context.Context, playerID string, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.txRepo.GetByPlayer(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet history: %w", err)
	}
	return entries, nil
}

// DebitTx debits a player's wallet inside the caller's transaction and
// records the matching ledger entry. A failed debit leaves both the wallet
// and the enclosing transaction's game state untouched.
func (s *WalletService) DebitTx(ctx context.Context, tx pgx.Tx, playerID string, amount int64, txType string, gameID *string, description string) error {
	balanceAfter, err := s.walletRepo.DebitTx(ctx, tx, playerID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		if errors.Is(err, repository.ErrWalletNotFound) {
			return ErrWalletNotFound
		}
		return fmt.Errorf("failed to debit wallet: %w", err)
	}

	record := &model.WalletTransaction{
		PlayerID:     playerID,
		Amount:       -amount,
		BalanceAfter: balanceAfter,
		Type:         txType,
		Description:  description,
		GameID:       gameID,
	}
	if err := s.txRepo.CreateTx(ctx, tx, record); err != nil {
		return fmt.Errorf("failed to record debit: %w", err)
	}

	return nil
}

// CreditTx credits a player's wallet inside the caller's transaction and
// records the matching ledger entry.
func (s *WalletService) CreditTx(ctx context.Context, tx pgx.Tx, playerID string, amount int64, txType string, gameID *string, description string) error {
	balanceAfter, err := s.walletRepo.CreditTx(ctx, tx, playerID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return ErrWalletNotFound
		}
		return fmt.Errorf("failed to credit wallet: %w", err)
	}

	record := &model.WalletTransaction{
		PlayerID:     playerID,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Type:         txType,
		Description:  description,
		GameID:       gameID,
	}
	if err := s.txRepo.CreateTx(ctx, tx, record); err != nil {
		return fmt.Errorf("failed to record credit: %w", err)
	}

	return nil
}
