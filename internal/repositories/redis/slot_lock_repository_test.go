package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	domain "github.com/deskhub/api/internal/domain"
)

type fixture struct {
	mr   *miniredis.Miniredis
	repo *SlotLockRepository
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{mr: mr, now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo, err := NewSlotLockRepository(client, WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.repo = repo
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
	f.mr.FastForward(d)
}

func (f *fixture) lock(user, start, end string) domain.SlotLock {
	key := "sp_1_2025-03-03_" + start + "_" + end
	return domain.SlotLock{
		Key: key, SpaceID: "sp_1", Date: "2025-03-03", StartTime: start, EndTime: end,
		UserID: user, AcquiredAt: f.now, ExpiresAt: f.now.Add(5 * time.Minute),
	}
}

func TestSlotLockRepositoryAcquireContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	holder, ok, err := f.repo.Acquire(ctx, f.lock("alice", "09:00", "10:00"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", holder.UserID)

	f.advance(time.Minute)
	holder, ok, err = f.repo.Acquire(ctx, f.lock("bob", "09:00", "10:00"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "alice", holder.UserID)
	require.Equal(t, "sp_1", holder.SpaceID)
	require.Equal(t, f.now.Add(4*time.Minute).UnixMilli(), holder.ExpiresAt.UnixMilli())

	got, found, err := f.repo.Get(ctx, holder.Key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alice", got.UserID)
	require.Equal(t, "09:00", got.StartTime)
}

func TestSlotLockRepositoryExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok, err := f.repo.Acquire(ctx, f.lock("alice", "09:00", "10:00"))
	require.NoError(t, err)
	require.True(t, ok)

	f.advance(5*time.Minute + time.Second)
	_, found, err := f.repo.Get(ctx, "sp_1_2025-03-03_09:00_10:00")
	require.NoError(t, err)
	require.False(t, found)

	_, ok, err = f.repo.Acquire(ctx, f.lock("bob", "09:00", "10:00"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSlotLockRepositoryRefreshAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock := f.lock("alice", "09:00", "10:00")

	_, _, err := f.repo.Acquire(ctx, lock)
	require.NoError(t, err)

	refreshed, err := f.repo.Refresh(ctx, lock.Key, "bob", f.now.Add(5*time.Minute))
	require.NoError(t, err)
	require.False(t, refreshed)

	f.advance(4 * time.Minute)
	refreshed, err = f.repo.Refresh(ctx, lock.Key, "alice", f.now.Add(5*time.Minute))
	require.NoError(t, err)
	require.True(t, refreshed)

	f.advance(2 * time.Minute)
	got, found, err := f.repo.Get(ctx, lock.Key)
	require.NoError(t, err)
	require.True(t, found, "refreshed lock must outlive the original ttl")
	require.Equal(t, "alice", got.UserID)

	released, err := f.repo.Release(ctx, lock.Key, "bob")
	require.NoError(t, err)
	require.False(t, released)

	released, err = f.repo.Release(ctx, lock.Key, "alice")
	require.NoError(t, err)
	require.True(t, released)
	require.False(t, f.mr.Exists("deskhub:slotlock:k:"+lock.Key))
}

func TestSlotLockRepositoryReleaseAllForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, l := range []domain.SlotLock{
		f.lock("alice", "09:00", "10:00"),
		f.lock("alice", "10:00", "11:00"),
		f.lock("bob", "11:00", "12:00"),
	} {
		_, ok, err := f.repo.Acquire(ctx, l)
		require.NoError(t, err)
		require.True(t, ok)
	}

	n, err := f.repo.ReleaseAllForUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, found, err := f.repo.Get(ctx, "sp_1_2025-03-03_11:00_12:00")
	require.NoError(t, err)
	require.True(t, found, "other users' locks survive")

	n, err = f.repo.ReleaseAllForUser(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSlotLockRepositoryUnavailable(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, _, err := f.repo.Get(context.Background(), "sp_1_2025-03-03_09:00_10:00")
	require.Error(t, err)
}
