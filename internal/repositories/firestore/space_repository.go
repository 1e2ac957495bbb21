package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	pfirestore "github.com/deskhub/api/internal/platform/firestore"
	"github.com/deskhub/api/internal/repositories"
)

const spacesCollection = "spaces"

// SpaceRepository reads coworking listings from Firestore.
type SpaceRepository struct {
	base *pfirestore.Collection[spaceDocument]
}

var _ repositories.SpaceRepository = (*SpaceRepository)(nil)

// NewSpaceRepository constructs a Firestore-backed space repository.
func NewSpaceRepository(provider *pfirestore.Provider) (*SpaceRepository, error) {
	if provider == nil {
		return nil, errors.New("space repository requires firestore provider")
	}
	return &SpaceRepository{base: pfirestore.NewCollection[spaceDocument](provider, spacesCollection)}, nil
}

// FindByID loads a space by document id.
func (r *SpaceRepository) FindByID(ctx context.Context, spaceID string) (domain.Space, error) {
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return domain.Space{}, repositories.NewNotFoundError("spaces.get", "space id is required")
	}
	doc, err := r.base.Get(ctx, spaceID)
	if err != nil {
		return domain.Space{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save upserts a space, used by seeding and integration tests.
func (r *SpaceRepository) Save(ctx context.Context, space domain.Space) error {
	return r.base.Set(ctx, space.ID, spaceToDocument(space))
}

type spaceDocument struct {
	HostID              string           `firestore:"hostId"`
	Title               string           `firestore:"title"`
	Description         string           `firestore:"description,omitempty"`
	PricePerHour        float64          `firestore:"pricePerHour"`
	PricePerDay         float64          `firestore:"pricePerDay"`
	Capacity            int              `firestore:"capacity"`
	StripeTaxEnabled    bool             `firestore:"stripeTaxEnabled"`
	HostStripeAccountID string           `firestore:"hostStripeAccountId,omitempty"`
	Published           bool             `firestore:"published"`
	Schedule            scheduleDocument `firestore:"schedule"`
	CreatedAt           time.Time        `firestore:"createdAt"`
	UpdatedAt           time.Time        `firestore:"updatedAt"`
}

type scheduleDocument struct {
	Weekdays  []int  `firestore:"weekdays,omitempty"`
	OpenTime  string `firestore:"openTime,omitempty"`
	CloseTime string `firestore:"closeTime,omitempty"`
}

func (d spaceDocument) toDomain(id string) domain.Space {
	weekdays := make([]time.Weekday, 0, len(d.Schedule.Weekdays))
	for _, day := range d.Schedule.Weekdays {
		if day >= 0 && day <= 6 {
			weekdays = append(weekdays, time.Weekday(day))
		}
	}
	return domain.Space{
		ID:                  id,
		HostID:              d.HostID,
		Title:               d.Title,
		Description:         d.Description,
		PricePerHour:        d.PricePerHour,
		PricePerDay:         d.PricePerDay,
		Capacity:            d.Capacity,
		StripeTaxEnabled:    d.StripeTaxEnabled,
		HostStripeAccountID: d.HostStripeAccountID,
		Published:           d.Published,
		Schedule: domain.SpaceSchedule{
			Weekdays:  weekdays,
			OpenTime:  d.Schedule.OpenTime,
			CloseTime: d.Schedule.CloseTime,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func spaceToDocument(s domain.Space) spaceDocument {
	weekdays := make([]int, 0, len(s.Schedule.Weekdays))
	for _, day := range s.Schedule.Weekdays {
		weekdays = append(weekdays, int(day))
	}
	return spaceDocument{
		HostID:              s.HostID,
		Title:               s.Title,
		Description:         s.Description,
		PricePerHour:        s.PricePerHour,
		PricePerDay:         s.PricePerDay,
		Capacity:            s.Capacity,
		StripeTaxEnabled:    s.StripeTaxEnabled,
		HostStripeAccountID: s.HostStripeAccountID,
		Published:           s.Published,
		Schedule: scheduleDocument{
			Weekdays:  weekdays,
			OpenTime:  s.Schedule.OpenTime,
			CloseTime: s.Schedule.CloseTime,
		},
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
