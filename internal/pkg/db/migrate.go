package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the DDL statements applied on startup. The partial unique
// index on room_name is what arbitrates concurrent room creation: only one
// active (waiting/playing) game may hold a name at a time.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		player_id VARCHAR(100) PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id UUID PRIMARY KEY,
		room_name VARCHAR(100) NOT NULL,
		player1 VARCHAR(100) NOT NULL,
		player2 VARCHAR(100),
		board JSONB NOT NULL,
		current_turn VARCHAR(1) NOT NULL DEFAULT 'X',
		status VARCHAR(10) NOT NULL DEFAULT 'waiting',
		winner VARCHAR(100),
		bet_amount BIGINT NOT NULL,
		total_pot BIGINT NOT NULL DEFAULT 0,
		winner_prize BIGINT NOT NULL DEFAULT 0,
		house_fee BIGINT NOT NULL DEFAULT 0,
		board_size INT NOT NULL DEFAULT 15,
		win_length INT NOT NULL DEFAULT 5,
		total_moves INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_games_active_room
		ON games (room_name)
		WHERE status IN ('waiting', 'playing')`,
	`CREATE INDEX IF NOT EXISTS idx_games_status_created
		ON games (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS moves (
		id BIGSERIAL PRIMARY KEY,
		game_id UUID NOT NULL REFERENCES games (id) ON DELETE CASCADE,
		player VARCHAR(100) NOT NULL,
		row_idx INT NOT NULL,
		col_idx INT NOT NULL,
		symbol VARCHAR(1) NOT NULL,
		seq INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (game_id, seq),
		UNIQUE (game_id, row_idx, col_idx)
	)`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id BIGSERIAL PRIMARY KEY,
		player_id VARCHAR(100) NOT NULL REFERENCES wallets (player_id),
		amount BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		type VARCHAR(20) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		game_id UUID REFERENCES games (id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_tx_player_created
		ON wallet_transactions (player_id, created_at DESC)`,
}

// Migrate applies the database schema. Statements are idempotent so this
// is safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
