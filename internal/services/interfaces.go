package services

import (
	"context"
	"time"

	domain "github.com/deskhub/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Space              = domain.Space
	Booking            = domain.Booking
	PricingInput       = domain.PricingInput
	PricingResult      = domain.PricingResult
	PricingRules       = domain.PricingRules
	FeeProfile         = domain.FeeProfile
	CheckoutAmounts    = domain.CheckoutAmounts
	CommissionSplit    = domain.CommissionSplit
	Quote              = domain.Quote
	DayAvailability    = domain.DayAvailability
	TimeSlot           = domain.TimeSlot
	SlotLock           = domain.SlotLock
	SlotLockStatus     = domain.SlotLockStatus
	Notification       = domain.Notification
	SystemHealthReport = domain.SystemHealthReport
)

// QuoteService prices booking requests against stored spaces.
type QuoteService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (Quote, error)
}

// QuoteCommand is a booking request to price. Profile defaults to the display profile.
type QuoteCommand struct {
	SpaceID   string
	Date      string
	StartTime string
	EndTime   string
	Guests    int
	Profile   string
}

// AvailabilityService derives bookable 30-minute slots from a space schedule and its bookings.
type AvailabilityService interface {
	DayAvailability(ctx context.Context, spaceID, date string) (DayAvailability, error)
	RangeAvailability(ctx context.Context, spaceID, fromDate, toDate string) ([]DayAvailability, error)
	HasConflict(ctx context.Context, spaceID, date, startTime, endTime string) (bool, error)
}

// SlotLockService holds short-lived locks on a slot while its owner completes checkout.
type SlotLockService interface {
	Acquire(ctx context.Context, cmd SlotLockCommand) (SlotLock, error)
	Refresh(ctx context.Context, cmd SlotLockCommand) (SlotLock, error)
	Release(ctx context.Context, cmd SlotLockCommand) error
	Status(ctx context.Context, cmd SlotLockCommand) (SlotLockStatus, error)
	ReleaseAllForUser(ctx context.Context, userID string) (int, error)
}

// SlotLockCommand identifies a slot and the acting user.
type SlotLockCommand struct {
	SpaceID   string
	Date      string
	StartTime string
	EndTime   string
	UserID    string
}

// BookingExpiryService cancels bookings whose approval, payment or slot reservation window lapsed.
type BookingExpiryService interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// SweepResult counts bookings cancelled per category in a sweep.
type SweepResult struct {
	RunID            string    `json:"run_id"`
	ExpiredApprovals int       `json:"expired_approvals"`
	ExpiredPayments  int       `json:"expired_payments"`
	ExpiredSlots     int       `json:"expired_slots"`
	Notifications    int       `json:"notifications_sent"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// SweepOutcome is the last completed sweep and the error it returned, if any.
type SweepOutcome struct {
	Result SweepResult
	Err    string
}

// SweepTracker exposes the most recent sweep run by this process.
type SweepTracker interface {
	LastSweep() (SweepOutcome, bool)
}

// Total returns the number of cancelled bookings.
func (r SweepResult) Total() int {
	return r.ExpiredApprovals + r.ExpiredPayments + r.ExpiredSlots
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// NotificationPublisher delivers user notifications.
type NotificationPublisher interface {
	Publish(ctx context.Context, notification Notification) (string, error)
}

// FeeSchedule resolves named fee profiles.
type FeeSchedule interface {
	Profile(name string) (FeeProfile, bool)
}
