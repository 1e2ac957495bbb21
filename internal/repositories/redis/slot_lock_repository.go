// Package redis stores slot locks in Redis hashes with native expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

const defaultSlotLockPrefix = "deskhub:slotlock:"

// acquireScript stores the lock unless another user holds it. It returns {1} on success and
// {0, field, value, ...} with the current holder otherwise.
var acquireScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'user')
if owner and owner ~= ARGV[1] then
  local holder = redis.call('HGETALL', KEYS[1])
  table.insert(holder, 1, 0)
  return holder
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'user', ARGV[1], 'space', ARGV[2], 'date', ARGV[3], 'start', ARGV[4], 'end', ARGV[5], 'acquired', ARGV[6], 'expires', ARGV[7])
redis.call('PEXPIRE', KEYS[1], ARGV[8])
redis.call('SADD', KEYS[2], ARGV[9])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[8]) then
  redis.call('PEXPIRE', KEYS[2], ARGV[8])
end
return {1}
`)

var refreshScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'user') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'expires', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[3]) then
  redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'user') ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[2])
return 1
`)

// releaseAllScript walks the user's lock index; ARGV[2] is the lock key prefix.
var releaseAllScript = redis.NewScript(`
local released = 0
for _, key in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local full = ARGV[2] .. key
  if redis.call('HGET', full, 'user') == ARGV[1] then
    redis.call('DEL', full)
    released = released + 1
  end
end
redis.call('DEL', KEYS[1])
return released
`)

// SlotLockRepository implements repositories.SlotLockRepository on Redis.
type SlotLockRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ repositories.SlotLockRepository = (*SlotLockRepository)(nil)

// Option customises the repository.
type Option func(*SlotLockRepository)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(r *SlotLockRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithClock injects the clock used to derive TTLs.
func WithClock(clock func() time.Time) Option {
	return func(r *SlotLockRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewSlotLockRepository constructs the repository.
func NewSlotLockRepository(client redis.UniversalClient, opts ...Option) (*SlotLockRepository, error) {
	if client == nil {
		return nil, errors.New("slot lock repository requires redis client")
	}
	repo := &SlotLockRepository{client: client, prefix: defaultSlotLockPrefix, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *SlotLockRepository) Acquire(ctx context.Context, lock domain.SlotLock) (domain.SlotLock, bool, error) {
	ttl := r.ttl(lock.ExpiresAt)
	if ttl <= 0 {
		return domain.SlotLock{}, false, fmt.Errorf("slot lock %s: expiry %s is in the past", lock.Key, lock.ExpiresAt)
	}
	res, err := acquireScript.Run(ctx, r.client,
		[]string{r.lockKey(lock.Key), r.userKey(lock.UserID)},
		lock.UserID, lock.SpaceID, lock.Date, lock.StartTime, lock.EndTime,
		lock.AcquiredAt.UnixMilli(), lock.ExpiresAt.UnixMilli(), ttl.Milliseconds(), lock.Key,
	).Slice()
	if err != nil {
		return domain.SlotLock{}, false, wrapError("slotlocks.acquire", err)
	}
	if len(res) == 0 {
		return domain.SlotLock{}, false, wrapError("slotlocks.acquire", errors.New("empty script reply"))
	}
	if ok, _ := res[0].(int64); ok == 1 {
		return lock, true, nil
	}
	fields := make(map[string]string, (len(res)-1)/2)
	for i := 1; i+1 < len(res); i += 2 {
		k, _ := res[i].(string)
		v, _ := res[i+1].(string)
		fields[k] = v
	}
	return decodeLock(lock.Key, fields), false, nil
}

func (r *SlotLockRepository) Get(ctx context.Context, key string) (domain.SlotLock, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.lockKey(key)).Result()
	if err != nil {
		return domain.SlotLock{}, false, wrapError("slotlocks.get", err)
	}
	if len(fields) == 0 {
		return domain.SlotLock{}, false, nil
	}
	lock := decodeLock(key, fields)
	if !lock.ExpiresAt.After(r.now()) {
		return domain.SlotLock{}, false, nil
	}
	return lock, true, nil
}

func (r *SlotLockRepository) Refresh(ctx context.Context, key, userID string, expiresAt time.Time) (bool, error) {
	ttl := r.ttl(expiresAt)
	if ttl <= 0 {
		return false, nil
	}
	n, err := refreshScript.Run(ctx, r.client,
		[]string{r.lockKey(key), r.userKey(userID)},
		userID, expiresAt.UnixMilli(), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, wrapError("slotlocks.refresh", err)
	}
	return n == 1, nil
}

func (r *SlotLockRepository) Release(ctx context.Context, key, userID string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client, []string{r.lockKey(key), r.userKey(userID)}, userID, key).Int()
	if err != nil {
		return false, wrapError("slotlocks.release", err)
	}
	return n == 1, nil
}

func (r *SlotLockRepository) ReleaseAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := releaseAllScript.Run(ctx, r.client, []string{r.userKey(userID)}, userID, r.prefix+"k:").Int()
	if err != nil {
		return 0, wrapError("slotlocks.release_all", err)
	}
	return n, nil
}

// Ping reports whether Redis answers, used by readiness checks.
func (r *SlotLockRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *SlotLockRepository) lockKey(key string) string  { return r.prefix + "k:" + key }
func (r *SlotLockRepository) userKey(user string) string { return r.prefix + "u:" + user }

func (r *SlotLockRepository) ttl(expiresAt time.Time) time.Duration {
	return expiresAt.Sub(r.now())
}

func decodeLock(key string, fields map[string]string) domain.SlotLock {
	return domain.SlotLock{
		Key:        key,
		SpaceID:    fields["space"],
		Date:       fields["date"],
		StartTime:  fields["start"],
		EndTime:    fields["end"],
		UserID:     fields["user"],
		AcquiredAt: parseMillis(fields["acquired"]),
		ExpiresAt:  parseMillis(fields["expires"]),
	}
}

func parseMillis(value string) time.Time {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func wrapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewUnavailableError(op, err)
}
