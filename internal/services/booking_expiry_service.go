package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

const (
	defaultExpiryLeaseTTL  = 2 * time.Minute
	defaultExpiryBatchSize = 200
	expiryMeterName        = "deskhub/services/expiry"
)

// Cancellation reasons stored on expired bookings.
const (
	ReasonApprovalExpired = "Richiesta di approvazione scaduta - l'host non ha risposto in tempo"
	ReasonPaymentExpired  = "Pagamento non completato entro 2h dall'approvazione"
	ReasonSlotExpired     = "Pagamento non completato entro 15 minuti dalla prenotazione"
)

// Reason codes carried in notification metadata.
const (
	ReasonCodeApprovalExpired = "approval_expired"
	ReasonCodePaymentExpired  = "payment_expired"
	ReasonCodeSlotExpired     = "slot_expired"
)

// expiryOrder is the order in which categories are swept.
var expiryOrder = []domain.ExpiryKind{domain.ExpiryApproval, domain.ExpiryPayment, domain.ExpirySlot}

// BookingExpiryServiceDeps bundles collaborators of the sweeper.
type BookingExpiryServiceDeps struct {
	Bookings  repositories.BookingRepository
	Publisher NotificationPublisher
	LeaseTTL  time.Duration
	BatchSize int
	Clock     func() time.Time
	IDGen     func() string
	Meter     metric.Meter
	Logger    func(context.Context, string, map[string]any)
}

type bookingExpiryService struct {
	bookings  repositories.BookingRepository
	publisher NotificationPublisher
	leaseTTL  time.Duration
	batchSize int
	clock     func() time.Time
	idGen     func() string
	expired   metric.Int64Counter
	logger    func(context.Context, string, map[string]any)

	mu   sync.Mutex
	last SweepOutcome
	ran  bool
}

var (
	_ BookingExpiryService = (*bookingExpiryService)(nil)
	_ SweepTracker         = (*bookingExpiryService)(nil)
)

// NewBookingExpiryService constructs the sweeper. A nil publisher disables notifications.
func NewBookingExpiryService(deps BookingExpiryServiceDeps) (BookingExpiryService, error) {
	if deps.Bookings == nil {
		return nil, errors.New("booking expiry service: booking repository is required")
	}
	leaseTTL := deps.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = defaultExpiryLeaseTTL
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(expiryMeterName)
	}
	counter, err := meter.Int64Counter("deskhub.bookings.expired",
		metric.WithDescription("Bookings cancelled by the expiry sweeper"))
	if err != nil {
		return nil, fmt.Errorf("booking expiry service: register counter: %w", err)
	}

	return &bookingExpiryService{
		bookings:  deps.Bookings,
		publisher: deps.Publisher,
		leaseTTL:  leaseTTL,
		batchSize: batch,
		clock:     func() time.Time { return clock().UTC() },
		idGen:     idGen,
		expired:   counter,
		logger:    logger,
	}, nil
}

// Sweep cancels expired approvals, payments and slot reservations in that order. A failing
// category is logged and the remaining categories still run; the first error is returned.
func (s *bookingExpiryService) Sweep(ctx context.Context) (SweepResult, error) {
	runID := s.idGen()
	result := SweepResult{RunID: runID, StartedAt: s.clock()}
	s.logger(ctx, "booking_expiry.started", map[string]any{"runId": runID})

	var firstErr error
	for _, kind := range expiryOrder {
		cancelled, notified, err := s.sweepKind(ctx, runID, kind)
		switch kind {
		case domain.ExpiryApproval:
			result.ExpiredApprovals = cancelled
		case domain.ExpiryPayment:
			result.ExpiredPayments = cancelled
		case domain.ExpirySlot:
			result.ExpiredSlots = cancelled
		}
		result.Notifications += notified
		if err != nil {
			s.logger(ctx, "booking_expiry.category_failed", map[string]any{
				"runId": runID,
				"kind":  string(kind),
				"error": err.Error(),
			})
			if firstErr == nil {
				firstErr = fmt.Errorf("booking expiry: %s: %w", kind, err)
			}
		}
	}

	result.FinishedAt = s.clock()
	s.logger(ctx, "booking_expiry.finished", map[string]any{
		"runId":            runID,
		"expiredApprovals": result.ExpiredApprovals,
		"expiredPayments":  result.ExpiredPayments,
		"expiredSlots":     result.ExpiredSlots,
		"notifications":    result.Notifications,
		"durationMs":       result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	})
	s.record(result, firstErr)
	return result, firstErr
}

func (s *bookingExpiryService) record(result SweepResult, err error) {
	outcome := SweepOutcome{Result: result}
	if err != nil {
		outcome.Err = err.Error()
	}
	s.mu.Lock()
	s.last, s.ran = outcome, true
	s.mu.Unlock()
}

// LastSweep returns the outcome of the latest Sweep call, or false before the first one.
func (s *bookingExpiryService) LastSweep() (SweepOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.ran
}

func (s *bookingExpiryService) sweepKind(ctx context.Context, runID string, kind domain.ExpiryKind) (int, int, error) {
	now := s.clock()
	claimed, err := s.bookings.ClaimExpired(ctx, kind, now, repositories.ClaimLease{
		Owner:     runID,
		ExpiresAt: now.Add(s.leaseTTL),
		Limit:     s.batchSize,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(claimed) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, 0, len(claimed))
	cancelled, notified := 0, 0
	var firstErr error
	for _, booking := range claimed {
		ids = append(ids, booking.ID)
		ok, err := s.bookings.Cancel(ctx, repositories.CancelCommand{
			BookingID:      booking.ID,
			ExpectedStatus: kind.ExpectedStatus(),
			ClaimOwner:     runID,
			Reason:         cancellationReason(kind),
			CancelledAt:    now,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			s.logger(ctx, "booking_expiry.skipped", map[string]any{"runId": runID, "bookingId": booking.ID, "kind": string(kind)})
			continue
		}
		cancelled++
		s.expired.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
		notified += s.notify(ctx, runID, kind, booking, now)
	}

	if err := s.bookings.ReleaseClaims(ctx, runID, ids); err != nil {
		s.logger(ctx, "booking_expiry.release_failed", map[string]any{"runId": runID, "error": err.Error()})
	}
	return cancelled, notified, firstErr
}

// notify publishes the notifications for a cancelled booking and returns how many succeeded.
func (s *bookingExpiryService) notify(ctx context.Context, runID string, kind domain.ExpiryKind, booking Booking, now time.Time) int {
	if s.publisher == nil {
		return 0
	}
	sent := 0
	for _, n := range expiryNotifications(kind, booking) {
		n.ID = s.idGen()
		n.CreatedAt = now
		if _, err := s.publisher.Publish(ctx, n); err != nil {
			s.logger(ctx, "booking_expiry.notify_failed", map[string]any{
				"runId":     runID,
				"bookingId": booking.ID,
				"userId":    n.UserID,
				"error":     err.Error(),
			})
			continue
		}
		sent++
	}
	return sent
}

func cancellationReason(kind domain.ExpiryKind) string {
	switch kind {
	case domain.ExpiryApproval:
		return ReasonApprovalExpired
	case domain.ExpiryPayment:
		return ReasonPaymentExpired
	default:
		return ReasonSlotExpired
	}
}

// expiryNotifications builds the messages for the coworker, plus the host on payment expiry.
func expiryNotifications(kind domain.ExpiryKind, booking Booking) []Notification {
	title := booking.SpaceTitle
	meta := func(code string) map[string]string {
		return map[string]string{
			"booking_id":  booking.ID,
			"space_title": title,
			"reason":      code,
		}
	}

	var out []Notification
	switch kind {
	case domain.ExpiryApproval:
		out = append(out, Notification{
			UserID:   booking.UserID,
			Type:     domain.NotificationBooking,
			Title:    "Richiesta di prenotazione scaduta",
			Content:  fmt.Sprintf("La tua richiesta di prenotazione per \"%s\" è scaduta perché l'host non ha risposto in tempo.", title),
			Metadata: meta(ReasonCodeApprovalExpired),
		})
	case domain.ExpiryPayment:
		out = append(out, Notification{
			UserID:   booking.UserID,
			Type:     domain.NotificationBookingCancelled,
			Title:    "Prenotazione cancellata",
			Content:  fmt.Sprintf("La tua prenotazione per \"%s\" è stata cancellata perché non hai completato il pagamento in tempo.", title),
			Metadata: meta(ReasonCodePaymentExpired),
		})
		if strings.TrimSpace(booking.HostID) != "" {
			out = append(out, Notification{
				UserID:   booking.HostID,
				Type:     domain.NotificationBookingCancelled,
				Title:    "Prenotazione cancellata",
				Content:  fmt.Sprintf("La prenotazione per \"%s\" è stata cancellata perché il coworker non ha completato il pagamento.", title),
				Metadata: meta(ReasonCodePaymentExpired),
			})
		}
	case domain.ExpirySlot:
		out = append(out, Notification{
			UserID:   booking.UserID,
			Type:     domain.NotificationBookingCancelled,
			Title:    "Prenotazione annullata",
			Content:  fmt.Sprintf("La tua prenotazione per \"%s\" è stata annullata perché non hai completato il pagamento entro 15 minuti.", title),
			Metadata: meta(ReasonCodeSlotExpired),
		})
	}
	return out
}
