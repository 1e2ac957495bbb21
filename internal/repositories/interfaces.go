package repositories

import (
	"context"
	"time"

	domain "github.com/deskhub/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency wiring.
type Registry interface {
	Close(ctx context.Context) error

	Spaces() SpaceRepository
	Bookings() BookingRepository
	SlotLocks() SlotLockRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// SpaceRepository reads coworking listings.
type SpaceRepository interface {
	FindByID(ctx context.Context, spaceID string) (domain.Space, error)
}

// ClaimLease scopes an expiry claim to a sweeper run.
type ClaimLease struct {
	Owner     string
	ExpiresAt time.Time
	Limit     int
}

// CancelCommand cancels a claimed booking when it still holds the expected status.
type CancelCommand struct {
	BookingID      string
	ExpectedStatus domain.BookingStatus
	ClaimOwner     string
	Reason         string
	CancelledAt    time.Time
}

// BookingRepository persists bookings and coordinates expiry sweeps.
type BookingRepository interface {
	// FindByID returns a RepositoryError with IsNotFound when the booking does not exist.
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	// ListBlocking returns bookings of the space that occupy slots on dates within [fromDate, toDate].
	ListBlocking(ctx context.Context, spaceID, fromDate, toDate string) ([]domain.Booking, error)
	// ClaimExpired marks bookings of the given kind whose deadline is at or before now as leased
	// by the caller. Bookings held by another unexpired lease are skipped.
	ClaimExpired(ctx context.Context, kind domain.ExpiryKind, now time.Time, lease ClaimLease) ([]domain.Booking, error)
	// Cancel reports false when the booking left the expected status or the claim was lost.
	Cancel(ctx context.Context, cmd CancelCommand) (bool, error)
	ReleaseClaims(ctx context.Context, owner string, bookingIDs []string) error
}

// SlotLockRepository stores optimistic checkout locks with a TTL.
type SlotLockRepository interface {
	// Acquire stores the lock unless another user holds an unexpired lock on the same key.
	// The returned lock is the current holder.
	Acquire(ctx context.Context, lock domain.SlotLock) (domain.SlotLock, bool, error)
	Get(ctx context.Context, key string) (domain.SlotLock, bool, error)
	Refresh(ctx context.Context, key, userID string, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, key, userID string) (bool, error)
	ReleaseAllForUser(ctx context.Context, userID string) (int, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
