package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/deskhub/api/internal/domain"
	pfirestore "github.com/deskhub/api/internal/platform/firestore"
	"github.com/deskhub/api/internal/repositories"
)

const bookingsCollection = "bookings"

// deadlineFields maps expiry kinds to the timestamp field queried by the sweeper.
var deadlineFields = map[domain.ExpiryKind]string{
	domain.ExpiryApproval: "approvalDeadline",
	domain.ExpiryPayment:  "paymentDeadline",
	domain.ExpirySlot:     "slotReservedUntil",
}

// BookingRepository persists bookings in Firestore. Expiry claims and cancellations run in
// transactions so overlapping sweeper runs never process the same booking twice.
type BookingRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[bookingDocument]
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository requires firestore provider")
	}
	return &BookingRepository{
		provider: provider,
		base:     pfirestore.NewCollection[bookingDocument](provider, bookingsCollection),
	}, nil
}

// Save upserts a booking, used by seeding and integration tests.
func (r *BookingRepository) Save(ctx context.Context, booking domain.Booking) error {
	return r.base.Set(ctx, booking.ID, bookingToDocument(booking))
}

// FindByID loads a single booking.
func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return domain.Booking{}, repositories.NewNotFoundError("bookings.find", "booking id is empty")
	}
	doc, err := r.base.Get(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListBlocking returns pending and confirmed bookings of a space between two dates inclusive.
func (r *BookingRepository) ListBlocking(ctx context.Context, spaceID, fromDate, toDate string) ([]domain.Booking, error) {
	spaceID = strings.TrimSpace(spaceID)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("spaceId", "==", spaceID).
			Where("status", "in", []string{string(domain.BookingStatusPending), string(domain.BookingStatusConfirmed)}).
			Where("bookingDate", ">=", fromDate).
			Where("bookingDate", "<=", toDate).
			OrderBy("bookingDate", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// ClaimExpired leases due bookings of the given kind to lease.Owner inside a transaction.
// Rows leased by another sweeper are skipped without counting towards lease.Limit: the query
// pages on (deadline, document id) until enough claimable rows are found or the due set ends.
func (r *BookingRepository) ClaimExpired(ctx context.Context, kind domain.ExpiryKind, now time.Time, lease repositories.ClaimLease) ([]domain.Booking, error) {
	field, ok := deadlineFields[kind]
	if !ok {
		return nil, pfirestore.WrapError("bookings.claim", status.Errorf(codes.InvalidArgument, "unknown expiry kind %q", kind))
	}
	limit := lease.Limit
	if limit <= 0 {
		limit = defaultClaimLimit
	}

	var claimed []domain.Booking
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = claimed[:0]
		var picked []pfirestore.Document[bookingDocument]
		var cursor *claimCursor
		// Firestore transactions require every read to happen before the first write.
		for page := 0; page < maxClaimPages && len(picked) < limit; page++ {
			after := cursor
			docs, err := r.base.TxQuery(ctx, tx, func(q firestore.Query) firestore.Query {
				q = q.Where("status", "==", string(kind.ExpectedStatus())).
					Where(field, "<=", now).
					OrderBy(field, firestore.Asc).
					OrderBy(firestore.DocumentID, firestore.Asc)
				if after != nil {
					q = q.StartAfter(after.deadline, after.id)
				}
				return q.Limit(limit)
			})
			if err != nil {
				return err
			}
			var done bool
			picked, cursor, done = selectClaimable(picked, docs, kind, lease.Owner, now, limit)
			if done {
				break
			}
		}
		for _, doc := range picked {
			ref, err := r.base.Ref(ctx, doc.ID)
			if err != nil {
				return err
			}
			if err := tx.Update(ref, []firestore.Update{
				{Path: "claimedBy", Value: lease.Owner},
				{Path: "claimExpiresAt", Value: lease.ExpiresAt},
			}); err != nil {
				return err
			}
			booking := doc.Data.toDomain(doc.ID)
			booking.ClaimedBy = lease.Owner
			expires := lease.ExpiresAt
			booking.ClaimExpiresAt = &expires
			claimed = append(claimed, booking)
		}
		return nil
	}, pfirestore.WithTxOperation("bookings.claim"))
	if err != nil {
		return nil, pfirestore.WrapError("bookings.claim", err)
	}
	return claimed, nil
}

const (
	defaultClaimLimit = 200
	maxClaimPages     = 10
)

type claimCursor struct {
	deadline time.Time
	id       string
}

// selectClaimable appends rows of one page that owner may lease, up to limit. It returns the
// cursor after the last row read and whether paging can stop.
func selectClaimable(picked []pfirestore.Document[bookingDocument], page []pfirestore.Document[bookingDocument], kind domain.ExpiryKind, owner string, now time.Time, limit int) ([]pfirestore.Document[bookingDocument], *claimCursor, bool) {
	var cursor *claimCursor
	for _, doc := range page {
		if deadline := doc.Data.deadline(kind); deadline != nil {
			cursor = &claimCursor{deadline: *deadline, id: doc.ID}
		}
		if leasedByOther(doc.Data, owner, now) {
			continue
		}
		picked = append(picked, doc)
		if len(picked) >= limit {
			return picked, cursor, true
		}
	}
	return picked, cursor, len(page) < limit || cursor == nil
}

// Cancel sets the booking to cancelled when it still holds the expected status and claim.
func (r *BookingRepository) Cancel(ctx context.Context, cmd repositories.CancelCommand) (bool, error) {
	ref, err := r.base.Ref(ctx, cmd.BookingID)
	if err != nil {
		return false, err
	}
	cancelled := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cancelled = false
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := pfirestore.Decode[bookingDocument](snapshot)
		if err != nil {
			return err
		}
		if doc.Data.Status != string(cmd.ExpectedStatus) {
			return nil
		}
		if cmd.ClaimOwner != "" && doc.Data.ClaimedBy != cmd.ClaimOwner {
			return nil
		}
		cancelled = true
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.BookingStatusCancelled)},
			{Path: "cancelledAt", Value: cmd.CancelledAt},
			{Path: "cancellationReason", Value: cmd.Reason},
			{Path: "updatedAt", Value: cmd.CancelledAt},
			{Path: "claimedBy", Value: firestore.Delete},
			{Path: "claimExpiresAt", Value: firestore.Delete},
		})
	}, pfirestore.WithTxOperation("bookings.cancel"))
	if err != nil {
		return false, pfirestore.WrapError("bookings.cancel", err)
	}
	return cancelled, nil
}

// ReleaseClaims clears leases still held by owner on the given bookings.
func (r *BookingRepository) ReleaseClaims(ctx context.Context, owner string, bookingIDs []string) error {
	if len(bookingIDs) == 0 {
		return nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		ref, err := r.base.Ref(ctx, id)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshots, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for _, snapshot := range snapshots {
			if !snapshot.Exists() {
				continue
			}
			doc, err := pfirestore.Decode[bookingDocument](snapshot)
			if err != nil {
				return err
			}
			if doc.Data.ClaimedBy != owner {
				continue
			}
			if err := tx.Update(snapshot.Ref, []firestore.Update{
				{Path: "claimedBy", Value: firestore.Delete},
				{Path: "claimExpiresAt", Value: firestore.Delete},
			}); err != nil {
				return err
			}
		}
		return nil
	}, pfirestore.WithTxOperation("bookings.release"))
	return pfirestore.WrapError("bookings.release", err)
}

func (d bookingDocument) deadline(kind domain.ExpiryKind) *time.Time {
	switch kind {
	case domain.ExpiryApproval:
		return d.ApprovalDeadline
	case domain.ExpiryPayment:
		return d.PaymentDeadline
	case domain.ExpirySlot:
		return d.SlotReservedUntil
	}
	return nil
}

func leasedByOther(doc bookingDocument, owner string, now time.Time) bool {
	return doc.ClaimedBy != "" && doc.ClaimedBy != owner && doc.ClaimExpiresAt != nil && doc.ClaimExpiresAt.After(now)
}

type bookingDocument struct {
	SpaceID            string     `firestore:"spaceId"`
	SpaceTitle         string     `firestore:"spaceTitle,omitempty"`
	UserID             string     `firestore:"userId"`
	HostID             string     `firestore:"hostId"`
	Date               string     `firestore:"bookingDate"`
	StartTime          string     `firestore:"startTime"`
	EndTime            string     `firestore:"endTime"`
	Guests             int        `firestore:"guests"`
	Status             string     `firestore:"status"`
	ApprovalDeadline   *time.Time `firestore:"approvalDeadline,omitempty"`
	PaymentDeadline    *time.Time `firestore:"paymentDeadline,omitempty"`
	SlotReservedUntil  *time.Time `firestore:"slotReservedUntil,omitempty"`
	CancelledAt        *time.Time `firestore:"cancelledAt,omitempty"`
	CancellationReason string     `firestore:"cancellationReason,omitempty"`
	ClaimedBy          string     `firestore:"claimedBy,omitempty"`
	ClaimExpiresAt     *time.Time `firestore:"claimExpiresAt,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
	UpdatedAt          time.Time  `firestore:"updatedAt"`
}

func (d bookingDocument) toDomain(id string) domain.Booking {
	return domain.Booking{
		ID:                 id,
		SpaceID:            d.SpaceID,
		SpaceTitle:         d.SpaceTitle,
		UserID:             d.UserID,
		HostID:             d.HostID,
		Date:               d.Date,
		StartTime:          d.StartTime,
		EndTime:            d.EndTime,
		Guests:             d.Guests,
		Status:             domain.BookingStatus(d.Status),
		ApprovalDeadline:   utcPtr(d.ApprovalDeadline),
		PaymentDeadline:    utcPtr(d.PaymentDeadline),
		SlotReservedUntil:  utcPtr(d.SlotReservedUntil),
		CancelledAt:        utcPtr(d.CancelledAt),
		CancellationReason: d.CancellationReason,
		ClaimedBy:          d.ClaimedBy,
		ClaimExpiresAt:     utcPtr(d.ClaimExpiresAt),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

func bookingToDocument(b domain.Booking) bookingDocument {
	return bookingDocument{
		SpaceID:            b.SpaceID,
		SpaceTitle:         b.SpaceTitle,
		UserID:             b.UserID,
		HostID:             b.HostID,
		Date:               b.Date,
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		Guests:             b.Guests,
		Status:             string(b.Status),
		ApprovalDeadline:   b.ApprovalDeadline,
		PaymentDeadline:    b.PaymentDeadline,
		SlotReservedUntil:  b.SlotReservedUntil,
		CancelledAt:        b.CancelledAt,
		CancellationReason: b.CancellationReason,
		ClaimedBy:          b.ClaimedBy,
		ClaimExpiresAt:     b.ClaimExpiresAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
