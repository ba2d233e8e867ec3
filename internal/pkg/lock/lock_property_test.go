// Property-based tests for per-game transition serialization.
package lock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// TestConcurrentTransitionSafetyProperty checks that concurrent state
// transitions on the same game, when serialized by the lock, produce the
// same result as sequential execution.
func TestConcurrentTransitionSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initialMoves := rapid.IntRange(0, 100).Draw(t, "initialMoves")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")
		gameID := fmt.Sprintf("game-%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))

		gl := NewGameLock()

		// Simulate the move counter with an unsynchronized read-modify-write
		moveCount := initialMoves

		var wg sync.WaitGroup
		wg.Add(numOps)

		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				gl.Lock(gameID)
				defer gl.Unlock(gameID)
				moveCount++
			}()
		}

		wg.Wait()

		if moveCount != initialMoves+numOps {
			t.Fatalf("move count mismatch: expected %d, got %d",
				initialMoves+numOps, moveCount)
		}
	})
}

// TestWithLockFunctionProperty tests that WithLock correctly serializes
// the wrapped function.
func TestWithLockFunctionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		gameID := fmt.Sprintf("game-%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))

		gl := NewGameLock()
		counter := 0

		var wg sync.WaitGroup
		wg.Add(numOps)

		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = gl.WithLock(gameID, func() error {
					counter++
					return nil
				})
			}()
		}

		wg.Wait()

		if counter != numOps {
			t.Fatalf("counter mismatch: expected %d, got %d", numOps, counter)
		}
	})
}

// TestIndependentGameLocksProperty tests that locks for different games
// do not interfere with each other.
func TestIndependentGameLocksProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numGames := rapid.IntRange(2, 10).Draw(t, "numGames")
		opsPerGame := rapid.IntRange(5, 20).Draw(t, "opsPerGame")

		gl := NewGameLock()

		counters := make([]int, numGames)

		var wg sync.WaitGroup
		wg.Add(numGames * opsPerGame)

		for g := 0; g < numGames; g++ {
			gameID := fmt.Sprintf("game-%d", g)
			for j := 0; j < opsPerGame; j++ {
				go func(idx int, id string) {
					defer wg.Done()
					gl.Lock(id)
					defer gl.Unlock(id)
					counters[idx]++
				}(g, gameID)
			}
		}

		wg.Wait()

		for g := 0; g < numGames; g++ {
			if counters[g] != opsPerGame {
				t.Fatalf("game %d counter mismatch: expected %d, got %d",
					g, opsPerGame, counters[g])
			}
		}
	})
}

// TestTryLockSingleWinnerProperty tests that simultaneous TryLock calls
// admit one holder at a time and leave the lock free afterwards.
func TestTryLockSingleWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gameID := fmt.Sprintf("game-%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		gl := NewGameLock()

		var successCount atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)

		startCh := make(chan struct{})

		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-startCh

				if gl.TryLock(gameID) {
					successCount.Add(1)
					gl.Unlock(gameID)
				}
			}()
		}

		close(startCh)
		wg.Wait()

		if successCount.Load() < 1 {
			t.Fatalf("at least one TryLock should succeed, got %d successes", successCount.Load())
		}

		if !gl.TryLock(gameID) {
			t.Fatal("lock should be available after all operations complete")
		}
		gl.Unlock(gameID)
	})
}

// TestLockUnlockSymmetryProperty tests that every Lock has a corresponding Unlock.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gameID := fmt.Sprintf("game-%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		gl := NewGameLock()

		for i := 0; i < numCycles; i++ {
			gl.Lock(gameID)
			gl.Unlock(gameID)
		}

		if !gl.TryLock(gameID) {
			t.Fatal("lock should be available after symmetric lock/unlock cycles")
		}
		gl.Unlock(gameID)
	})
}
