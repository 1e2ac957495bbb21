package domain

import "time"

// Space is a bookable coworking listing owned by a host.
type Space struct {
	ID                  string
	HostID              string
	Title               string
	Description         string
	PricePerHour        float64
	PricePerDay         float64
	Capacity            int
	StripeTaxEnabled    bool
	HostStripeAccountID string
	Published           bool
	Schedule            SpaceSchedule
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SpaceSchedule stores the recurring opening hours of a space.
type SpaceSchedule struct {
	// Weekdays lists enabled days. Empty means every day is enabled.
	Weekdays  []time.Weekday
	OpenTime  string
	CloseTime string
}

// IsDayEnabled reports whether the schedule accepts bookings on the given weekday.
func (s SpaceSchedule) IsDayEnabled(day time.Weekday) bool {
	if len(s.Weekdays) == 0 {
		return true
	}
	for _, enabled := range s.Weekdays {
		if enabled == day {
			return true
		}
	}
	return false
}

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"
	BookingStatusPendingApproval BookingStatus = "pending_approval"
	BookingStatusPendingPayment  BookingStatus = "pending_payment"
	BookingStatusConfirmed       BookingStatus = "confirmed"
	BookingStatusCancelled       BookingStatus = "cancelled"
	BookingStatusCompleted       BookingStatus = "completed"
)

// BlocksSlots reports whether a booking in this status occupies its time range.
func (s BookingStatus) BlocksSlots() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Booking is a reservation of a space for a time range on a single date.
type Booking struct {
	ID                 string
	SpaceID            string
	SpaceTitle         string
	UserID             string
	HostID             string
	Date               string
	StartTime          string
	EndTime            string
	Guests             int
	Status             BookingStatus
	ApprovalDeadline   *time.Time
	PaymentDeadline    *time.Time
	SlotReservedUntil  *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	ClaimedBy          string
	ClaimExpiresAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Deadline returns the timestamp governing expiry of the given kind, or nil when unset.
func (b Booking) Deadline(kind ExpiryKind) *time.Time {
	switch kind {
	case ExpiryApproval:
		return b.ApprovalDeadline
	case ExpiryPayment:
		return b.PaymentDeadline
	default:
		return b.SlotReservedUntil
	}
}

// ExpiryKind identifies why a pending booking expired.
type ExpiryKind string

const (
	ExpiryApproval ExpiryKind = "approval"
	ExpiryPayment  ExpiryKind = "payment"
	ExpirySlot     ExpiryKind = "slot"
)

// ExpectedStatus returns the booking status a claim of this kind must still hold.
func (k ExpiryKind) ExpectedStatus() BookingStatus {
	switch k {
	case ExpiryApproval:
		return BookingStatusPendingApproval
	case ExpiryPayment:
		return BookingStatusPendingPayment
	default:
		return BookingStatusPending
	}
}

// DayStatus summarises the availability of a date.
type DayStatus string

const (
	DayAvailable   DayStatus = "available"
	DayPartial     DayStatus = "partial"
	DayUnavailable DayStatus = "unavailable"
	DayDisabled    DayStatus = "disabled"
)

// TimeSlot is a half-hour bookable interval.
type TimeSlot struct {
	Start     string
	End       string
	Available bool
	BookingID string
}

// DayAvailability reports slot occupancy for a date.
type DayAvailability struct {
	Date   string
	Status DayStatus
	Slots  []TimeSlot
}

// SlotLock is a short lived claim on a time range while a user completes checkout.
type SlotLock struct {
	Key        string
	SpaceID    string
	Date       string
	StartTime  string
	EndTime    string
	UserID     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// SlotLockStatus is the lock state as seen by a given user.
type SlotLockStatus struct {
	IsLocked  bool
	LockedBy  string
	ExpiresIn int
}

// NotificationType classifies user notifications.
type NotificationType string

const (
	NotificationBooking          NotificationType = "booking"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
)

// Notification is a user facing message emitted by background jobs.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
