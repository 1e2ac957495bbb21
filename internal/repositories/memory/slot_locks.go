package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

// SlotLockRepository keeps slot locks in a map. Expired entries are ignored and purged lazily.
type SlotLockRepository struct {
	mu    sync.Mutex
	locks map[string]domain.SlotLock
	now   func() time.Time
}

var _ repositories.SlotLockRepository = (*SlotLockRepository)(nil)

// NewSlotLockRepository constructs the repository. A nil clock uses time.Now.
func NewSlotLockRepository(clock func() time.Time) *SlotLockRepository {
	if clock == nil {
		clock = time.Now
	}
	return &SlotLockRepository{locks: make(map[string]domain.SlotLock), now: clock}
}

func (r *SlotLockRepository) Acquire(_ context.Context, lock domain.SlotLock) (domain.SlotLock, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.active(lock.Key); ok && current.UserID != lock.UserID {
		return current, false, nil
	}
	r.locks[lock.Key] = lock
	return lock, true, nil
}

func (r *SlotLockRepository) Get(_ context.Context, key string) (domain.SlotLock, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.active(key)
	return lock, ok, nil
}

func (r *SlotLockRepository) Refresh(_ context.Context, key, userID string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.active(key)
	if !ok || lock.UserID != userID {
		return false, nil
	}
	lock.ExpiresAt = expiresAt
	r.locks[key] = lock
	return true, nil
}

func (r *SlotLockRepository) Release(_ context.Context, key, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.active(key)
	if !ok || lock.UserID != userID {
		return false, nil
	}
	delete(r.locks, key)
	return true, nil
}

func (r *SlotLockRepository) ReleaseAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	released := 0
	for key := range r.locks {
		lock, ok := r.active(key)
		if ok && lock.UserID == userID {
			delete(r.locks, key)
			released++
		}
	}
	return released, nil
}

// active returns the unexpired lock for key, deleting it when expired. Callers hold mu.
func (r *SlotLockRepository) active(key string) (domain.SlotLock, bool) {
	lock, ok := r.locks[key]
	if !ok {
		return domain.SlotLock{}, false
	}
	if !lock.ExpiresAt.After(r.now()) {
		delete(r.locks, key)
		return domain.SlotLock{}, false
	}
	return lock, true
}
