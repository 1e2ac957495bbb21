package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

// BookingRepository keeps bookings in a map and serialises claims with a mutex.
type BookingRepository struct {
	mu       sync.Mutex
	bookings map[string]domain.Booking
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository seeds the repository with the given bookings.
func NewBookingRepository(seed ...domain.Booking) *BookingRepository {
	r := &BookingRepository{bookings: make(map[string]domain.Booking, len(seed))}
	for _, b := range seed {
		r.bookings[b.ID] = b
	}
	return r
}

// Put inserts or replaces a booking.
func (r *BookingRepository) Put(booking domain.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[booking.ID] = booking
}

// Get returns a copy of the stored booking.
func (r *BookingRepository) Get(id string) (domain.Booking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	return b, ok
}

func (r *BookingRepository) FindByID(_ context.Context, bookingID string) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[strings.TrimSpace(bookingID)]
	if !ok {
		return domain.Booking{}, repositories.NewNotFoundError("bookings.find", "booking not found")
	}
	return b, nil
}

func (r *BookingRepository) ListBlocking(_ context.Context, spaceID, fromDate, toDate string) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spaceID = strings.TrimSpace(spaceID)
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.SpaceID != spaceID || !b.Status.BlocksSlots() {
			continue
		}
		if b.Date < fromDate || b.Date > toDate {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *BookingRepository) ClaimExpired(_ context.Context, kind domain.ExpiryKind, now time.Time, lease repositories.ClaimLease) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []domain.Booking
	for _, b := range r.bookings {
		if b.Status != kind.ExpectedStatus() {
			continue
		}
		deadline := b.Deadline(kind)
		if deadline == nil || deadline.After(now) {
			continue
		}
		if b.ClaimedBy != "" && b.ClaimedBy != lease.Owner && b.ClaimExpiresAt != nil && b.ClaimExpiresAt.After(now) {
			continue
		}
		candidates = append(candidates, b)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Deadline(kind).Before(*candidates[j].Deadline(kind))
	})
	if lease.Limit > 0 && len(candidates) > lease.Limit {
		candidates = candidates[:lease.Limit]
	}

	expires := lease.ExpiresAt
	for i := range candidates {
		candidates[i].ClaimedBy = lease.Owner
		candidates[i].ClaimExpiresAt = &expires
		r.bookings[candidates[i].ID] = candidates[i]
	}
	return candidates, nil
}

func (r *BookingRepository) Cancel(_ context.Context, cmd repositories.CancelCommand) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[cmd.BookingID]
	if !ok {
		return false, repositories.NewNotFoundError("bookings.cancel", "booking "+cmd.BookingID+" not found")
	}
	if b.Status != cmd.ExpectedStatus {
		return false, nil
	}
	if cmd.ClaimOwner != "" && b.ClaimedBy != cmd.ClaimOwner {
		return false, nil
	}
	at := cmd.CancelledAt
	b.Status = domain.BookingStatusCancelled
	b.CancelledAt = &at
	b.CancellationReason = cmd.Reason
	b.UpdatedAt = at
	b.ClaimedBy = ""
	b.ClaimExpiresAt = nil
	r.bookings[b.ID] = b
	return true, nil
}

func (r *BookingRepository) ReleaseClaims(_ context.Context, owner string, bookingIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range bookingIDs {
		b, ok := r.bookings[id]
		if !ok || b.ClaimedBy != owner {
			continue
		}
		b.ClaimedBy = ""
		b.ClaimExpiresAt = nil
		r.bookings[id] = b
	}
	return nil
}
