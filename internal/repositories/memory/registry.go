package memory

import (
	"context"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

// Registry wires the in-memory repositories together.
type Registry struct {
	spaces   *SpaceRepository
	bookings *BookingRepository
	locks    *SlotLockRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds an empty registry. A nil clock uses time.Now.
func NewRegistry(clock func() time.Time) *Registry {
	health, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}})
	return &Registry{
		spaces:   NewSpaceRepository(),
		bookings: NewBookingRepository(),
		locks:    NewSlotLockRepository(clock),
		health:   health,
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Spaces() repositories.SpaceRepository       { return r.spaces }
func (r *Registry) Bookings() repositories.BookingRepository   { return r.bookings }
func (r *Registry) SlotLocks() repositories.SlotLockRepository { return r.locks }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

// Seed stores fixtures, used by local runs.
func (r *Registry) Seed(spaces []domain.Space, bookings []domain.Booking) {
	for _, s := range spaces {
		r.spaces.Put(s)
	}
	for _, b := range bookings {
		r.bookings.Put(b)
	}
}
