package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

const defaultSlotLockTTL = 5 * time.Minute

var (
	// ErrSlotLocked is matched by *SlotLockedError when another user holds the slot.
	ErrSlotLocked = errors.New("slot lock: slot is locked by another user")
	// ErrSlotUnavailable is returned when an existing booking overlaps the slot.
	ErrSlotUnavailable = errors.New("slot lock: slot is already booked")
	// ErrSlotLockNotHeld is returned when the caller does not own the lock it tries to change.
	ErrSlotLockNotHeld = errors.New("slot lock: lock not held by caller")
	// ErrSlotLockInvalidInput signals a malformed slot or missing user.
	ErrSlotLockInvalidInput = errors.New("slot lock: invalid input")
)

// SlotLockedError reports the current holder of a contended slot.
type SlotLockedError struct {
	Owner     string
	ExpiresIn int
}

func (e *SlotLockedError) Error() string {
	return fmt.Sprintf("slot lock: slot is locked by another user for %ds", e.ExpiresIn)
}

func (e *SlotLockedError) Is(target error) bool {
	return target == ErrSlotLocked
}

// SlotLockKey builds the storage key "{space}_{date}_{start}_{end}".
func SlotLockKey(spaceID, date, startTime, endTime string) string {
	return spaceID + "_" + date + "_" + startTime + "_" + endTime
}

// ParseSlotLockKey splits a key produced by SlotLockKey. Space ids may contain underscores.
func ParseSlotLockKey(key string) (SlotLockCommand, error) {
	parts := strings.Split(strings.TrimSpace(key), "_")
	if len(parts) < 4 {
		return SlotLockCommand{}, fmt.Errorf("%w: malformed lock key %q", ErrSlotLockInvalidInput, key)
	}
	n := len(parts)
	return SlotLockCommand{
		SpaceID:   strings.Join(parts[:n-3], "_"),
		Date:      parts[n-3],
		StartTime: parts[n-2],
		EndTime:   parts[n-1],
	}, nil
}

// SlotLockServiceDeps bundles collaborators of the slot lock service.
type SlotLockServiceDeps struct {
	Locks        repositories.SlotLockRepository
	Availability AvailabilityService
	TTL          time.Duration
	Clock        func() time.Time
	Logger       func(context.Context, string, map[string]any)
}

type slotLockService struct {
	locks        repositories.SlotLockRepository
	availability AvailabilityService
	ttl          time.Duration
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

var _ SlotLockService = (*slotLockService)(nil)

// NewSlotLockService constructs a SlotLockService. Availability is optional; without it
// acquisitions skip the booking overlap check.
func NewSlotLockService(deps SlotLockServiceDeps) (SlotLockService, error) {
	if deps.Locks == nil {
		return nil, errors.New("slot lock service: lock repository is required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultSlotLockTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &slotLockService{
		locks:        deps.Locks,
		availability: deps.Availability,
		ttl:          ttl,
		clock:        func() time.Time { return clock().UTC() },
		logger:       logger,
	}, nil
}

func (s *slotLockService) Acquire(ctx context.Context, cmd SlotLockCommand) (SlotLock, error) {
	cmd, err := normalizeSlotLockCommand(cmd)
	if err != nil {
		return SlotLock{}, err
	}

	if s.availability != nil {
		conflict, err := s.availability.HasConflict(ctx, cmd.SpaceID, cmd.Date, cmd.StartTime, cmd.EndTime)
		if err != nil {
			return SlotLock{}, err
		}
		if conflict {
			return SlotLock{}, ErrSlotUnavailable
		}
	}

	now := s.clock()
	lock := domain.SlotLock{
		Key:        SlotLockKey(cmd.SpaceID, cmd.Date, cmd.StartTime, cmd.EndTime),
		SpaceID:    cmd.SpaceID,
		Date:       cmd.Date,
		StartTime:  cmd.StartTime,
		EndTime:    cmd.EndTime,
		UserID:     cmd.UserID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	holder, acquired, err := s.locks.Acquire(ctx, lock)
	if err != nil {
		return SlotLock{}, err
	}
	if !acquired {
		s.logger(ctx, "slot_lock.contended", map[string]any{
			"lockKey": lock.Key,
			"userId":  cmd.UserID,
		})
		return SlotLock{}, &SlotLockedError{Owner: holder.UserID, ExpiresIn: secondsUntil(now, holder.ExpiresAt)}
	}
	return holder, nil
}

func (s *slotLockService) Refresh(ctx context.Context, cmd SlotLockCommand) (SlotLock, error) {
	cmd, err := normalizeSlotLockCommand(cmd)
	if err != nil {
		return SlotLock{}, err
	}
	key := SlotLockKey(cmd.SpaceID, cmd.Date, cmd.StartTime, cmd.EndTime)
	ok, err := s.locks.Refresh(ctx, key, cmd.UserID, s.clock().Add(s.ttl))
	if err != nil {
		return SlotLock{}, err
	}
	if !ok {
		return SlotLock{}, ErrSlotLockNotHeld
	}
	lock, found, err := s.locks.Get(ctx, key)
	if err != nil {
		return SlotLock{}, err
	}
	if !found {
		return SlotLock{}, ErrSlotLockNotHeld
	}
	return lock, nil
}

// Release drops the caller's lock. Releasing an absent lock is a no-op.
func (s *slotLockService) Release(ctx context.Context, cmd SlotLockCommand) error {
	cmd, err := normalizeSlotLockCommand(cmd)
	if err != nil {
		return err
	}
	key := SlotLockKey(cmd.SpaceID, cmd.Date, cmd.StartTime, cmd.EndTime)
	released, err := s.locks.Release(ctx, key, cmd.UserID)
	if err != nil || released {
		return err
	}
	holder, found, err := s.locks.Get(ctx, key)
	if err != nil {
		return err
	}
	if found && holder.UserID != cmd.UserID && holder.ExpiresAt.After(s.clock()) {
		return ErrSlotLockNotHeld
	}
	return nil
}

func (s *slotLockService) Status(ctx context.Context, cmd SlotLockCommand) (SlotLockStatus, error) {
	cmd, err := normalizeSlotLockCommand(cmd)
	if err != nil {
		return SlotLockStatus{}, err
	}
	lock, found, err := s.locks.Get(ctx, SlotLockKey(cmd.SpaceID, cmd.Date, cmd.StartTime, cmd.EndTime))
	if err != nil {
		return SlotLockStatus{}, err
	}
	now := s.clock()
	if !found || !lock.ExpiresAt.After(now) || lock.UserID == cmd.UserID {
		return SlotLockStatus{}, nil
	}
	return SlotLockStatus{
		IsLocked:  true,
		LockedBy:  lock.UserID,
		ExpiresIn: secondsUntil(now, lock.ExpiresAt),
	}, nil
}

func (s *slotLockService) ReleaseAllForUser(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrSlotLockInvalidInput)
	}
	released, err := s.locks.ReleaseAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.logger(ctx, "slot_lock.released_all", map[string]any{"userId": userID, "count": released})
	}
	return released, nil
}

func normalizeSlotLockCommand(cmd SlotLockCommand) (SlotLockCommand, error) {
	cmd.SpaceID = strings.TrimSpace(cmd.SpaceID)
	cmd.Date = strings.TrimSpace(cmd.Date)
	cmd.StartTime = strings.TrimSpace(cmd.StartTime)
	cmd.EndTime = strings.TrimSpace(cmd.EndTime)
	cmd.UserID = strings.TrimSpace(cmd.UserID)

	if cmd.UserID == "" {
		return cmd, fmt.Errorf("%w: user id is required", ErrSlotLockInvalidInput)
	}
	if cmd.SpaceID == "" {
		return cmd, fmt.Errorf("%w: space id is required", ErrSlotLockInvalidInput)
	}
	if _, err := parseDate(cmd.Date); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrSlotLockInvalidInput, err)
	}
	if _, _, err := parseRange(cmd.StartTime, cmd.EndTime); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrSlotLockInvalidInput, err)
	}
	return cmd, nil
}

// secondsUntil rounds the remaining lifetime up to whole seconds, never below zero.
func secondsUntil(now, expiresAt time.Time) int {
	remaining := expiresAt.Sub(now).Seconds()
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining))
}
