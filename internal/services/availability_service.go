package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

const (
	defaultOpenTime     = "09:00"
	defaultCloseTime    = "18:00"
	maxAvailabilityDays = 62
)

var (
	// ErrAvailabilityInvalidInput signals malformed dates, times or ranges.
	ErrAvailabilityInvalidInput = errors.New("availability: invalid input")
	// ErrAvailabilitySpaceNotFound is returned when the space does not exist.
	ErrAvailabilitySpaceNotFound = errors.New("availability: space not found")
	// ErrAvailabilityRangeTooLarge is returned when a range spans more than 62 days.
	ErrAvailabilityRangeTooLarge = errors.New("availability: range too large")
)

type availabilityService struct {
	spaces   repositories.SpaceRepository
	bookings repositories.BookingRepository
}

// AvailabilityServiceDeps bundles collaborators of the availability service.
type AvailabilityServiceDeps struct {
	Spaces   repositories.SpaceRepository
	Bookings repositories.BookingRepository
}

var _ AvailabilityService = (*availabilityService)(nil)

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(deps AvailabilityServiceDeps) (AvailabilityService, error) {
	if deps.Spaces == nil {
		return nil, errors.New("availability service: space repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("availability service: booking repository is required")
	}
	return &availabilityService{spaces: deps.Spaces, bookings: deps.Bookings}, nil
}

func (s *availabilityService) DayAvailability(ctx context.Context, spaceID, date string) (DayAvailability, error) {
	days, err := s.RangeAvailability(ctx, spaceID, date, date)
	if err != nil {
		return DayAvailability{}, err
	}
	return days[0], nil
}

func (s *availabilityService) RangeAvailability(ctx context.Context, spaceID, fromDate, toDate string) ([]DayAvailability, error) {
	from, err := parseDate(fromDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAvailabilityInvalidInput, err)
	}
	to, err := parseDate(toDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAvailabilityInvalidInput, err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrAvailabilityInvalidInput)
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > maxAvailabilityDays {
		return nil, fmt.Errorf("%w: %d days requested, maximum is %d", ErrAvailabilityRangeTooLarge, days, maxAvailabilityDays)
	}

	space, err := s.loadSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	byDate, err := s.blockingByDate(ctx, space.ID, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	open, close := openingHours(space.Schedule)
	out := make([]DayAvailability, 0, days)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		if !space.Schedule.IsDayEnabled(day.Weekday()) {
			out = append(out, DayAvailability{Date: date, Status: domain.DayDisabled, Slots: []TimeSlot{}})
			continue
		}
		out = append(out, buildDay(date, open, close, byDate[date]))
	}
	return out, nil
}

func (s *availabilityService) HasConflict(ctx context.Context, spaceID, date, startTime, endTime string) (bool, error) {
	if _, err := parseDate(date); err != nil {
		return false, fmt.Errorf("%w: %v", ErrAvailabilityInvalidInput, err)
	}
	start, end, err := parseRange(startTime, endTime)
	if err != nil {
		return false, err
	}
	byDate, err := s.blockingByDate(ctx, strings.TrimSpace(spaceID), date, date)
	if err != nil {
		return false, err
	}
	return conflictingBooking(byDate[date], start, end) != "", nil
}

func (s *availabilityService) loadSpace(ctx context.Context, spaceID string) (Space, error) {
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return Space{}, fmt.Errorf("%w: space id is required", ErrAvailabilityInvalidInput)
	}
	space, err := s.spaces.FindByID(ctx, spaceID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Space{}, fmt.Errorf("%w: %s", ErrAvailabilitySpaceNotFound, spaceID)
		}
		return Space{}, err
	}
	return space, nil
}

func (s *availabilityService) blockingByDate(ctx context.Context, spaceID, fromDate, toDate string) (map[string][]Booking, error) {
	bookings, err := s.bookings.ListBlocking(ctx, spaceID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Booking)
	for _, b := range bookings {
		if !b.Status.BlocksSlots() {
			continue
		}
		out[b.Date] = append(out[b.Date], b)
	}
	return out, nil
}

func openingHours(schedule domain.SpaceSchedule) (int, int) {
	open, err := parseClock(schedule.OpenTime)
	if err != nil {
		open, _ = parseClock(defaultOpenTime)
	}
	close, err := parseEndClock(schedule.CloseTime)
	if err != nil || close <= open {
		open, _ = parseClock(defaultOpenTime)
		close, _ = parseEndClock(defaultCloseTime)
	}
	return open, close
}

func buildDay(date string, open, close int, bookings []Booking) DayAvailability {
	slots := make([]TimeSlot, 0, (close-open)/slotMinutes)
	free := 0
	for start := open; start+slotMinutes <= close; start += slotMinutes {
		end := start + slotMinutes
		slot := TimeSlot{Start: formatClock(start), End: formatClock(end), Available: true}
		if id := conflictingBooking(bookings, start, end); id != "" {
			slot.Available = false
			slot.BookingID = id
		} else {
			free++
		}
		slots = append(slots, slot)
	}

	status := domain.DayPartial
	switch free {
	case len(slots):
		status = domain.DayAvailable
	case 0:
		status = domain.DayUnavailable
	}
	return DayAvailability{Date: date, Status: status, Slots: slots}
}

// conflictingBooking returns the id of the first booking overlapping [start, end), or "".
func conflictingBooking(bookings []Booking, start, end int) string {
	for _, b := range bookings {
		if !b.Status.BlocksSlots() {
			continue
		}
		bStart, err := parseClock(b.StartTime)
		if err != nil {
			continue
		}
		bEnd, err := parseEndClock(b.EndTime)
		if err != nil {
			continue
		}
		if overlaps(start, end, bStart, bEnd) {
			return b.ID
		}
	}
	return ""
}

func parseRange(startTime, endTime string) (int, int, error) {
	start, err := parseClock(startTime)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrAvailabilityInvalidInput, err)
	}
	end, err := parseEndClock(endTime)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrAvailabilityInvalidInput, err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("%w: end time must follow start time", ErrAvailabilityInvalidInput)
	}
	return start, end, nil
}
