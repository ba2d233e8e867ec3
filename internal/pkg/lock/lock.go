// Package lock provides per-game locking so that at most one state
// transition is in flight for a given game within this process. The
// database fencing token remains authoritative across processes; this
// lock is the fast-fail path for same-process races.
package lock

import (
	"sync"
)

// gameMutex wraps a mutex with reference counting for reuse.
type gameMutex struct {
	mu       sync.Mutex
	refCount int
}

// GameLock provides per-game mutual exclusion keyed by game ID.
type GameLock struct {
	locks sync.Map // map[string]*gameMutex
	pool  sync.Pool
}

// NewGameLock creates a new GameLock instance.
func NewGameLock() *GameLock {
	return &GameLock{
		pool: sync.Pool{
			New: func() any {
				return &gameMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given game ID.
func (gl *GameLock) getLock(gameID string) *gameMutex {
	if v, ok := gl.locks.Load(gameID); ok {
		return v.(*gameMutex)
	}

	newLock := gl.pool.Get().(*gameMutex)
	newLock.refCount = 0

	actual, loaded := gl.locks.LoadOrStore(gameID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		gl.pool.Put(newLock)
	}
	return actual.(*gameMutex)
}

// Lock acquires the lock for a game. It must be held across the whole
// state transition, including the storage transaction.
func (gl *GameLock) Lock(gameID string) {
	lock := gl.getLock(gameID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a game.
func (gl *GameLock) Unlock(gameID string) {
	if v, ok := gl.locks.Load(gameID); ok {
		lock := v.(*gameMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (gl *GameLock) TryLock(gameID string) bool {
	lock := gl.getLock(gameID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes fn while holding the game's lock.
func (gl *GameLock) WithLock(gameID string, fn func() error) error {
	gl.Lock(gameID)
	defer gl.Unlock(gameID)
	return fn()
}

// IsLocked checks if a game currently has an active lock.
// Note: this is a point-in-time check and may change immediately after.
func (gl *GameLock) IsLocked(gameID string) bool {
	if v, ok := gl.locks.Load(gameID); ok {
		lock := v.(*gameMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
