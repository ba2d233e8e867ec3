// Package model defines the data models for the caro arena server.
package model

import "time"

// Game statuses. A game is active while waiting or playing; finished and
// abandoned are terminal.
const (
	StatusWaiting   = "waiting"
	StatusPlaying   = "playing"
	StatusFinished  = "finished"
	StatusAbandoned = "abandoned"
)

// Player symbols. Player one always owns X, player two owns O.
const (
	SymbolX = "X"
	SymbolO = "O"
)

// Default game settings, matching the platform's standard table.
const (
	DefaultBoardSize = 15
	DefaultWinLength = 5
	DefaultBetAmount = 10000
)

// InitialBalance is the balance a wallet starts with.
const InitialBalance = 100000

// Game represents a single caro match with its betting state.
type Game struct {
	ID          string     `db:"id"`
	RoomName    string     `db:"room_name"`
	Player1     string     `db:"player1"`
	Player2     *string    `db:"player2"`
	Board       [][]string `db:"board"`
	Turn        string     `db:"current_turn"`
	Status      string     `db:"status"`
	Winner      *string    `db:"winner"`
	BetAmount   int64      `db:"bet_amount"`
	TotalPot    int64      `db:"total_pot"`
	WinnerPrize int64      `db:"winner_prize"`
	HouseFee    int64      `db:"house_fee"`
	BoardSize   int        `db:"board_size"`
	WinLength   int        `db:"win_length"`
	TotalMoves  int        `db:"total_moves"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	StartedAt   *time.Time `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
}

// IsActive reports whether the game still occupies its room name.
func (g *Game) IsActive() bool {
	return g.Status == StatusWaiting || g.Status == StatusPlaying
}

// IsParticipant reports whether playerID is seated at this game.
func (g *Game) IsParticipant(playerID string) bool {
	if g.Player1 == playerID {
		return true
	}
	return g.Player2 != nil && *g.Player2 == playerID
}

// SymbolOf returns the symbol playerID plays with, or "" for a spectator.
func (g *Game) SymbolOf(playerID string) string {
	if g.Player1 == playerID {
		return SymbolX
	}
	if g.Player2 != nil && *g.Player2 == playerID {
		return SymbolO
	}
	return ""
}

// Opponent returns the other seated player, or nil if there is none.
func (g *Game) Opponent(playerID string) *string {
	if g.Player1 == playerID {
		return g.Player2
	}
	if g.Player2 != nil && *g.Player2 == playerID {
		p1 := g.Player1
		return &p1
	}
	return nil
}

// Duration returns the elapsed play time for a started game.
func (g *Game) Duration() time.Duration {
	if g.StartedAt == nil || g.FinishedAt == nil {
		return 0
	}
	return g.FinishedAt.Sub(*g.StartedAt)
}

// Move is one entry in a game's append-only move log.
// Seq is strictly increasing per game and equals the game's total move count
// at the time the move committed; it doubles as the fencing token.
type Move struct {
	ID        int64     `db:"id"`
	GameID    string    `db:"game_id"`
	Player    string    `db:"player"`
	Row       int       `db:"row"`
	Col       int       `db:"col"`
	Symbol    string    `db:"symbol"`
	Seq       int       `db:"seq"`
	CreatedAt time.Time `db:"created_at"`
}

// Wallet holds a player's balance. Balance never goes negative; every change
// is paired with a WalletTransaction in the same database transaction.
type Wallet struct {
	PlayerID  string    `db:"player_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// WalletTransaction is an immutable ledger record for one balance change.
// Amount is signed: negative for debits, positive for credits.
type WalletTransaction struct {
	ID           int64     `db:"id"`
	PlayerID     string    `db:"player_id"`
	Amount       int64     `db:"amount"`
	BalanceAfter int64     `db:"balance_after"`
	Type         string    `db:"type"`
	Description  string    `db:"description"`
	GameID       *string   `db:"game_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeInitial     = "initial"      // Opening balance on wallet creation
	TxTypeBet         = "caro_bet"     // Stake debited on create/join
	TxTypeWin         = "caro_win"     // Prize credited to the winner
	TxTypeRefund      = "caro_refund"  // Stake returned on abandon/expiry
	TxTypeAdminAdd    = "admin_add"    // Admin added balance
	TxTypeAdminDeduct = "admin_deduct" // Admin deducted balance
)

// GameView is the snapshot shape returned to callers and pushed to
// realtime subscribers.
type GameView struct {
	ID          string     `json:"id"`
	RoomName    string     `json:"room_name"`
	Player1     string     `json:"player1"`
	Player2     *string    `json:"player2,omitempty"`
	Board       [][]string `json:"board"`
	Turn        string     `json:"current_turn"`
	Status      string     `json:"status"`
	Winner      *string    `json:"winner,omitempty"`
	BetAmount   int64      `json:"bet_amount"`
	TotalPot    int64      `json:"total_pot"`
	WinnerPrize int64      `json:"winner_prize"`
	HouseFee    int64      `json:"house_fee"`
	BoardSize   int        `json:"board_size"`
	WinLength   int        `json:"win_length"`
	TotalMoves  int        `json:"total_moves"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationSec int64      `json:"duration_seconds,omitempty"`
}

// View builds the caller-facing snapshot of a game.
func (g *Game) View() *GameView {
	return &GameView{
		ID:          g.ID,
		RoomName:    g.RoomName,
		Player1:     g.Player1,
		Player2:     g.Player2,
		Board:       g.Board,
		Turn:        g.Turn,
		Status:      g.Status,
		Winner:      g.Winner,
		BetAmount:   g.BetAmount,
		TotalPot:    g.TotalPot,
		WinnerPrize: g.WinnerPrize,
		HouseFee:    g.HouseFee,
		BoardSize:   g.BoardSize,
		WinLength:   g.WinLength,
		TotalMoves:  g.TotalMoves,
		CreatedAt:   g.CreatedAt,
		StartedAt:   g.StartedAt,
		FinishedAt:  g.FinishedAt,
		DurationSec: int64(g.Duration().Seconds()),
	}
}

// RoomSummary is the compact per-room entry used by the room list.
type RoomSummary struct {
	RoomName  string    `json:"room_name"`
	GameID    string    `json:"game_id"`
	Player1   string    `json:"player1"`
	Player2   *string   `json:"player2,omitempty"`
	Status    string    `json:"status"`
	BetAmount int64     `json:"bet_amount"`
	CreatedAt time.Time `json:"created_at"`
}
