package di

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	pfirestore "github.com/deskhub/api/internal/platform/firestore"
	"github.com/deskhub/api/internal/repositories"
	firestoreRepo "github.com/deskhub/api/internal/repositories/firestore"
	redisRepo "github.com/deskhub/api/internal/repositories/redis"
)

// CloudRegistryDeps bundles the clients backing the production registry. Checks run in
// addition to Firestore and Redis, e.g. the Pub/Sub topic.
type CloudRegistryDeps struct {
	Firestore *pfirestore.Provider
	Redis     redis.UniversalClient
	Checks    []repositories.DependencyCheck
	Clock     func() time.Time
}

type cloudRegistry struct {
	firestore *pfirestore.Provider
	redis     redis.UniversalClient

	spaces   repositories.SpaceRepository
	bookings repositories.BookingRepository
	locks    repositories.SlotLockRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*cloudRegistry)(nil)

// NewCloudRegistry stores spaces and bookings in Firestore and slot locks in Redis.
func NewCloudRegistry(deps CloudRegistryDeps) (repositories.Registry, error) {
	if deps.Firestore == nil {
		return nil, errors.New("cloud registry: firestore provider is required")
	}
	if deps.Redis == nil {
		return nil, errors.New("cloud registry: redis client is required")
	}

	spaces, err := firestoreRepo.NewSpaceRepository(deps.Firestore)
	if err != nil {
		return nil, err
	}
	bookings, err := firestoreRepo.NewBookingRepository(deps.Firestore)
	if err != nil {
		return nil, err
	}
	lockOpts := []redisRepo.Option{}
	if deps.Clock != nil {
		lockOpts = append(lockOpts, redisRepo.WithClock(deps.Clock))
	}
	locks, err := redisRepo.NewSlotLockRepository(deps.Redis, lockOpts...)
	if err != nil {
		return nil, err
	}

	checks := []repositories.DependencyCheck{
		{Name: "firestore", Timeout: 1500 * time.Millisecond, Check: deps.Firestore.Ping},
		{Name: "redis", Timeout: time.Second, Check: locks.Ping},
	}
	checks = append(checks, deps.Checks...)
	healthOpts := []repositories.DependencyHealthOption{}
	if deps.Clock != nil {
		healthOpts = append(healthOpts, repositories.WithDependencyClock(deps.Clock))
	}
	health, err := repositories.NewDependencyHealthRepository(checks, healthOpts...)
	if err != nil {
		return nil, err
	}

	return &cloudRegistry{
		firestore: deps.Firestore,
		redis:     deps.Redis,
		spaces:    spaces,
		bookings:  bookings,
		locks:     locks,
		health:    health,
	}, nil
}

func (r *cloudRegistry) Spaces() repositories.SpaceRepository       { return r.spaces }
func (r *cloudRegistry) Bookings() repositories.BookingRepository   { return r.bookings }
func (r *cloudRegistry) SlotLocks() repositories.SlotLockRepository { return r.locks }
func (r *cloudRegistry) Health() repositories.HealthRepository      { return r.health }

// Close shuts down the Firestore and Redis clients.
func (r *cloudRegistry) Close(ctx context.Context) error {
	return errors.Join(r.firestore.Close(ctx), r.redis.Close())
}
