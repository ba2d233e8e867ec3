// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"caro-arena/internal/board"
	"caro-arena/internal/model"
	"caro-arena/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// inTestTx runs fn inside a transaction and commits it.
func inTestTx(t *testing.T, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	require.NoError(t, tx.Commit(ctx))
	return nil
}

// newTestGame builds a waiting game ready for CreateTx.
func newTestGame(roomName, player1 string) *model.Game {
	return &model.Game{
		ID:        uuid.NewString(),
		RoomName:  roomName,
		Player1:   player1,
		Board:     board.New(model.DefaultBoardSize).Cells(),
		Turn:      model.SymbolX,
		Status:    model.StatusWaiting,
		BetAmount: model.DefaultBetAmount,
		BoardSize: model.DefaultBoardSize,
		WinLength: model.DefaultWinLength,
	}
}

// createGame inserts a game through the repository and fails the test on error.
func createGame(t *testing.T, pool *pgxpool.Pool, repo *GameRepository, g *model.Game) {
	t.Helper()
	err := inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.CreateTx(context.Background(), tx, g)
	})
	require.NoError(t, err)
}

// ============================================================================
// WalletRepository Tests
// ============================================================================

func TestWalletRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	// First create returns the fresh wallet
	w, created, err := repo.Create(ctx, "alice", model.InitialBalance)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", w.PlayerID)
	assert.Equal(t, int64(model.InitialBalance), w.Balance)
	assert.False(t, w.CreatedAt.IsZero())

	// Second create is a no-op returning the existing wallet
	w, created, err = repo.Create(ctx, "alice", model.InitialBalance)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(model.InitialBalance), w.Balance)

	// Unknown player
	_, err = repo.GetByPlayer(ctx, "nobody")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestWalletRepository_DebitCredit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	_, _, err := repo.Create(ctx, "alice", 1000)
	require.NoError(t, err)

	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		after, err := repo.DebitTx(ctx, tx, "alice", 400)
		require.NoError(t, err)
		assert.Equal(t, int64(600), after)

		after, err = repo.CreditTx(ctx, tx, "alice", 150)
		require.NoError(t, err)
		assert.Equal(t, int64(750), after)
		return nil
	})
	require.NoError(t, err)

	w, err := repo.GetByPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(750), w.Balance)
}

func TestWalletRepository_DebitInsufficientFunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	_, _, err := repo.Create(ctx, "alice", 500)
	require.NoError(t, err)

	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		_, err := repo.DebitTx(ctx, tx, "alice", 501)
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Failed debit must not touch the balance
	w, err := repo.GetByPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)

	// Debiting a missing wallet is not-found, not insufficient
	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		_, err := repo.DebitTx(ctx, tx, "nobody", 1)
		return err
	})
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestWalletRepository_RollbackLeavesBalanceIntact(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	_, _, err := repo.Create(ctx, "alice", 1000)
	require.NoError(t, err)

	// Debit succeeds inside the transaction but the transaction rolls back.
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	after, err := repo.DebitTx(ctx, tx, "alice", 999)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after)
	require.NoError(t, tx.Rollback(ctx))

	w, err := repo.GetByPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)
}

// ============================================================================
// GameRepository Tests
// ============================================================================

func TestGameRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	g := newTestGame("lobby-1", "alice")
	createGame(t, pool, repo, g)
	assert.False(t, g.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "lobby-1", got.RoomName)
	assert.Equal(t, "alice", got.Player1)
	assert.Nil(t, got.Player2)
	assert.Equal(t, model.StatusWaiting, got.Status)
	assert.Len(t, got.Board, model.DefaultBoardSize)
	assert.Len(t, got.Board[0], model.DefaultBoardSize)

	got, err = repo.GetActiveByRoom(ctx, "lobby-1")
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)

	_, err = repo.GetActiveByRoom(ctx, "no-such-room")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestGameRepository_DuplicateActiveRoom(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	first := newTestGame("lobby-1", "alice")
	createGame(t, pool, repo, first)

	// Second active game in the same room is rejected
	err := inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.CreateTx(ctx, tx, newTestGame("lobby-1", "bob"))
	})
	assert.ErrorIs(t, err, ErrDuplicateRoom)

	// Once the first game is terminal the room name is free again
	first.Status = model.StatusAbandoned
	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.UpdateTx(ctx, tx, first, 0)
	})
	require.NoError(t, err)

	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.CreateTx(ctx, tx, newTestGame("lobby-1", "bob"))
	})
	require.NoError(t, err)
}

func TestGameRepository_FencedUpdate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	g := newTestGame("lobby-1", "alice")
	createGame(t, pool, repo, g)

	// Both writers start from the same snapshot at zero moves.
	stale, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)

	g.TotalMoves = 1
	g.Board[7][7] = model.SymbolX
	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.UpdateTx(ctx, tx, g, 0)
	})
	require.NoError(t, err)

	// The writer holding the old snapshot loses the race
	stale.TotalMoves = 1
	stale.Board[0][0] = model.SymbolX
	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.UpdateTx(ctx, tx, stale, 0)
	})
	assert.ErrorIs(t, err, ErrStaleGame)

	got, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalMoves)
	assert.Equal(t, model.SymbolX, got.Board[7][7])
	assert.Equal(t, "", got.Board[0][0])
}

func TestGameRepository_GetLatestByRoom(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	first := newTestGame("lobby-1", "alice")
	createGame(t, pool, repo, first)

	first.Status = model.StatusAbandoned
	err := inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.UpdateTx(ctx, tx, first, 0)
	})
	require.NoError(t, err)

	// No active game, but the latest one is still visible
	_, err = repo.GetActiveByRoom(ctx, "lobby-1")
	assert.ErrorIs(t, err, ErrGameNotFound)

	latest, err := repo.GetLatestByRoom(ctx, "lobby-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
	assert.Equal(t, model.StatusAbandoned, latest.Status)
}

func TestGameRepository_ActiveRooms(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	a := newTestGame("room-a", "alice")
	b := newTestGame("room-b", "bob")
	c := newTestGame("room-c", "carol")
	createGame(t, pool, repo, a)
	createGame(t, pool, repo, b)
	createGame(t, pool, repo, c)

	c.Status = model.StatusFinished
	err := inTestTx(t, pool, func(tx pgx.Tx) error {
		return repo.UpdateTx(ctx, tx, c, 0)
	})
	require.NoError(t, err)

	rooms, err := repo.ActiveRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	names := []string{rooms[0].RoomName, rooms[1].RoomName}
	assert.Contains(t, names, "room-a")
	assert.Contains(t, names, "room-b")
	assert.NotContains(t, names, "room-c")
}

func TestGameRepository_StaleWaitingIDs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	g := newTestGame("lobby-1", "alice")
	createGame(t, pool, repo, g)

	// Fresh games are not stale
	ids, err := repo.StaleWaitingIDs(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	// A cutoff in the future catches the waiting game
	ids, err = repo.StaleWaitingIDs(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, g.ID, ids[0])
}

// ============================================================================
// MoveRepository Tests
// ============================================================================

func TestMoveRepository_AppendAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	gameRepo := NewGameRepository(pool)
	moveRepo := NewMoveRepository(pool)
	ctx := context.Background()

	g := newTestGame("lobby-1", "alice")
	createGame(t, pool, gameRepo, g)

	moves := []*model.Move{
		{GameID: g.ID, Player: "alice", Row: 7, Col: 7, Symbol: model.SymbolX, Seq: 1},
		{GameID: g.ID, Player: "bob", Row: 7, Col: 8, Symbol: model.SymbolO, Seq: 2},
		{GameID: g.ID, Player: "alice", Row: 8, Col: 7, Symbol: model.SymbolX, Seq: 3},
	}
	for _, m := range moves {
		err := inTestTx(t, pool, func(tx pgx.Tx) error {
			return moveRepo.AppendTx(ctx, tx, m)
		})
		require.NoError(t, err)
		assert.NotZero(t, m.ID)
		assert.False(t, m.CreatedAt.IsZero())
	}

	got, err := moveRepo.ListByGame(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, m := range got {
		assert.Equal(t, i+1, m.Seq)
	}
}

func TestMoveRepository_RejectsDuplicateCell(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	gameRepo := NewGameRepository(pool)
	moveRepo := NewMoveRepository(pool)
	ctx := context.Background()

	g := newTestGame("lobby-1", "alice")
	createGame(t, pool, gameRepo, g)

	err := inTestTx(t, pool, func(tx pgx.Tx) error {
		return moveRepo.AppendTx(ctx, tx, &model.Move{
			GameID: g.ID, Player: "alice", Row: 7, Col: 7, Symbol: model.SymbolX, Seq: 1,
		})
	})
	require.NoError(t, err)

	// Same cell again violates the per-game position constraint
	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		return moveRepo.AppendTx(ctx, tx, &model.Move{
			GameID: g.ID, Player: "bob", Row: 7, Col: 7, Symbol: model.SymbolO, Seq: 2,
		})
	})
	assert.Error(t, err)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_CreateAndGetByPlayer(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	walletRepo := NewWalletRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, _, err := walletRepo.Create(ctx, "alice", model.InitialBalance)
	require.NoError(t, err)

	records := []*model.WalletTransaction{
		{PlayerID: "alice", Amount: model.InitialBalance, BalanceAfter: model.InitialBalance, Type: model.TxTypeInitial, Description: "opening balance"},
		{PlayerID: "alice", Amount: -10000, BalanceAfter: 90000, Type: model.TxTypeBet, Description: "bet"},
		{PlayerID: "alice", Amount: 18000, BalanceAfter: 108000, Type: model.TxTypeWin, Description: "win"},
	}
	for _, rec := range records {
		err := inTestTx(t, pool, func(tx pgx.Tx) error {
			return txRepo.CreateTx(ctx, tx, rec)
		})
		require.NoError(t, err)
		assert.NotZero(t, rec.ID)
	}

	txs, err := txRepo.GetByPlayer(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	// Newest first
	assert.Equal(t, model.TxTypeWin, txs[0].Type)
	assert.Equal(t, int64(108000), txs[0].BalanceAfter)
	assert.Equal(t, model.TxTypeInitial, txs[2].Type)
}

func TestTransactionRepository_GetByGame(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	walletRepo := NewWalletRepository(pool)
	gameRepo := NewGameRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, _, err := walletRepo.Create(ctx, "alice", model.InitialBalance)
	require.NoError(t, err)
	_, _, err = walletRepo.Create(ctx, "bob", model.InitialBalance)
	require.NoError(t, err)

	g := newTestGame("lobby-1", "alice")
	createGame(t, pool, gameRepo, g)

	for _, rec := range []*model.WalletTransaction{
		{PlayerID: "alice", Amount: -10000, BalanceAfter: 90000, Type: model.TxTypeBet, Description: "bet", GameID: &g.ID},
		{PlayerID: "bob", Amount: -10000, BalanceAfter: 90000, Type: model.TxTypeBet, Description: "bet", GameID: &g.ID},
		{PlayerID: "alice", Amount: 500, BalanceAfter: 90500, Type: model.TxTypeAdminAdd, Description: "unrelated"},
	} {
		err := inTestTx(t, pool, func(tx pgx.Tx) error {
			return txRepo.CreateTx(ctx, tx, rec)
		})
		require.NoError(t, err)
	}

	txs, err := txRepo.GetByGame(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		require.NotNil(t, tx.GameID)
		assert.Equal(t, g.ID, *tx.GameID)
		assert.Equal(t, model.TxTypeBet, tx.Type)
	}
}

// TestAtomicSettlement exercises the commit boundary the services rely on:
// a game insert and a failing debit in one transaction leave no trace of
// either when the transaction rolls back.
func TestAtomicSettlement(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	walletRepo := NewWalletRepository(pool)
	gameRepo := NewGameRepository(pool)
	ctx := context.Background()

	_, _, err := walletRepo.Create(ctx, "alice", 5000) // below the default bet
	require.NoError(t, err)

	g := newTestGame("lobby-1", "alice")
	err = inTestTx(t, pool, func(tx pgx.Tx) error {
		if err := gameRepo.CreateTx(ctx, tx, g); err != nil {
			return err
		}
		_, err := walletRepo.DebitTx(ctx, tx, "alice", g.BetAmount)
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// The rolled-back game must not exist and the room stays free
	_, err = gameRepo.GetByID(ctx, g.ID)
	assert.ErrorIs(t, err, ErrGameNotFound)
	_, err = gameRepo.GetActiveByRoom(ctx, "lobby-1")
	assert.ErrorIs(t, err, ErrGameNotFound)

	w, err := walletRepo.GetByPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), w.Balance)
}
