package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

var (
	// ErrBookingNotFound is returned when the booking id does not resolve.
	ErrBookingNotFound = errors.New("booking checkout: booking not found")
	// ErrBookingForbidden is returned when the caller does not own the booking.
	ErrBookingForbidden = errors.New("booking checkout: booking belongs to another user")
	// ErrBookingNotPayable is returned when the booking is not awaiting payment.
	ErrBookingNotPayable = errors.New("booking checkout: booking is not awaiting payment")
)

// BookingCheckoutService prices a stored booking for payment on behalf of its owner.
type BookingCheckoutService interface {
	QuoteBooking(ctx context.Context, bookingID, userID string) (Booking, Quote, error)
}

// BookingCheckout implements BookingCheckoutService on top of the booking repository and QuoteService.
type BookingCheckout struct {
	bookings repositories.BookingRepository
	quotes   QuoteService
	logger   func(context.Context, string, map[string]any)
}

// BookingCheckoutDeps bundles collaborators of BookingCheckout.
type BookingCheckoutDeps struct {
	Bookings repositories.BookingRepository
	Quotes   QuoteService
	Logger   func(context.Context, string, map[string]any)
}

var _ BookingCheckoutService = (*BookingCheckout)(nil)

func NewBookingCheckout(deps BookingCheckoutDeps) (*BookingCheckout, error) {
	if deps.Bookings == nil {
		return nil, errors.New("booking checkout: booking repository is required")
	}
	if deps.Quotes == nil {
		return nil, errors.New("booking checkout: quote service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &BookingCheckout{bookings: deps.Bookings, quotes: deps.Quotes, logger: logger}, nil
}

// QuoteBooking loads the booking, checks that userID owns it and that it is pending or
// pending_payment, then prices the stored date, times and guests with the checkout profile.
func (s *BookingCheckout) QuoteBooking(ctx context.Context, bookingID, userID string) (Booking, Quote, error) {
	bookingID = strings.TrimSpace(bookingID)
	userID = strings.TrimSpace(userID)
	if bookingID == "" || userID == "" {
		return Booking{}, Quote{}, fmt.Errorf("%w: booking id and user id are required", ErrPricingInvalidInput)
	}

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Booking{}, Quote{}, ErrBookingNotFound
		}
		return Booking{}, Quote{}, err
	}
	if booking.UserID != userID {
		s.logger(ctx, "booking_checkout.forbidden", map[string]any{"bookingID": bookingID})
		return Booking{}, Quote{}, ErrBookingForbidden
	}
	switch booking.Status {
	case domain.BookingStatusPending, domain.BookingStatusPendingPayment:
	default:
		return Booking{}, Quote{}, fmt.Errorf("%w: status %s", ErrBookingNotPayable, booking.Status)
	}

	quote, err := s.quotes.Quote(ctx, QuoteCommand{
		SpaceID:   booking.SpaceID,
		Date:      booking.Date,
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
		Guests:    booking.Guests,
		Profile:   domain.FeeProfileCheckout,
	})
	if err != nil {
		return Booking{}, Quote{}, err
	}
	return booking, quote, nil
}
