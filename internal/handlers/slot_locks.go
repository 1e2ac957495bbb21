package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/deskhub/api/internal/platform/auth"
	"github.com/deskhub/api/internal/platform/httpx"
	"github.com/deskhub/api/internal/services"
)

const maxSlotLockBodySize = 2 * 1024

// SlotLockHandlers lets signed-in users hold a slot while they complete checkout.
type SlotLockHandlers struct {
	authn       *auth.Authenticator
	locks       services.SlotLockService
	idempotency func(http.Handler) http.Handler
}

// SlotLockHandlerOption customises SlotLockHandlers.
type SlotLockHandlerOption func(*SlotLockHandlers)

// WithSlotLockIdempotency guards lock creation with the given idempotency middleware.
func WithSlotLockIdempotency(mw func(http.Handler) http.Handler) SlotLockHandlerOption {
	return func(h *SlotLockHandlers) {
		h.idempotency = mw
	}
}

// NewSlotLockHandlers constructs SlotLockHandlers.
func NewSlotLockHandlers(authn *auth.Authenticator, locks services.SlotLockService, opts ...SlotLockHandlerOption) *SlotLockHandlers {
	h := &SlotLockHandlers{authn: authn, locks: locks}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /me/slot-locks endpoints.
func (h *SlotLockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/slot-locks", func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		create := http.Handler(http.HandlerFunc(h.acquire))
		if h.idempotency != nil {
			create = h.idempotency(create)
		}
		rt.Method(http.MethodPost, "/", create)
		rt.Delete("/", h.releaseAll)
		rt.Get("/status", h.status)
		rt.Put("/{lockKey}", h.refresh)
		rt.Delete("/{lockKey}", h.release)
	})
}

type slotLockRequest struct {
	SpaceID   string `json:"spaceId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type slotLockPayload struct {
	LockKey    string `json:"lockKey"`
	SpaceID    string `json:"spaceId"`
	Date       string `json:"date"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	AcquiredAt string `json:"acquiredAt"`
	ExpiresAt  string `json:"expiresAt"`
}

type slotLockResponse struct {
	Lock slotLockPayload `json:"lock"`
}

type slotLockStatusResponse struct {
	IsLocked  bool `json:"isLocked"`
	ExpiresIn int  `json:"expiresIn"`
}

type releaseAllResponse struct {
	Released int `json:"released"`
}

func (h *SlotLockHandlers) acquire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req slotLockRequest
	if !decodeJSONBody(w, r, maxSlotLockBodySize, &req) {
		return
	}

	lock, err := h.locks.Acquire(ctx, services.SlotLockCommand{
		SpaceID:   req.SpaceID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		UserID:    userID,
	})
	if err != nil {
		writeSlotLockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, slotLockResponse{Lock: buildSlotLockPayload(lock)})
}

func (h *SlotLockHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	cmd, err := services.ParseSlotLockKey(chi.URLParam(r, "lockKey"))
	if err != nil {
		writeSlotLockError(ctx, w, err)
		return
	}
	cmd.UserID = userID

	lock, err := h.locks.Refresh(ctx, cmd)
	if err != nil {
		writeSlotLockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, slotLockResponse{Lock: buildSlotLockPayload(lock)})
}

func (h *SlotLockHandlers) release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	cmd, err := services.ParseSlotLockKey(chi.URLParam(r, "lockKey"))
	if err != nil {
		writeSlotLockError(ctx, w, err)
		return
	}
	cmd.UserID = userID

	if err := h.locks.Release(ctx, cmd); err != nil {
		writeSlotLockError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SlotLockHandlers) releaseAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	released, err := h.locks.ReleaseAllForUser(ctx, userID)
	if err != nil {
		writeSlotLockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, releaseAllResponse{Released: released})
}

func (h *SlotLockHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	status, err := h.locks.Status(ctx, services.SlotLockCommand{
		SpaceID:   query.Get("spaceId"),
		Date:      query.Get("date"),
		StartTime: query.Get("startTime"),
		EndTime:   query.Get("endTime"),
		UserID:    userID,
	})
	if err != nil {
		writeSlotLockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, slotLockStatusResponse{IsLocked: status.IsLocked, ExpiresIn: status.ExpiresIn})
}

// begin checks the service and the caller identity, writing the error response itself.
func (h *SlotLockHandlers) begin(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.locks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("slot_lock_service_unavailable", "slot lock service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

func buildSlotLockPayload(lock services.SlotLock) slotLockPayload {
	return slotLockPayload{
		LockKey:    lock.Key,
		SpaceID:    lock.SpaceID,
		Date:       lock.Date,
		StartTime:  lock.StartTime,
		EndTime:    lock.EndTime,
		AcquiredAt: formatTime(lock.AcquiredAt),
		ExpiresAt:  formatTime(lock.ExpiresAt),
	}
}

func writeSlotLockError(ctx context.Context, w http.ResponseWriter, err error) {
	var locked *services.SlotLockedError
	switch {
	case errors.As(err, &locked):
		httpx.WriteError(ctx, w, httpx.NewError("slot_locked", "slot is being booked by another user", http.StatusConflict).
			WithDetails(map[string]any{"expires_in": locked.ExpiresIn}))
	case errors.Is(err, services.ErrSlotUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("slot_unavailable", "slot is already booked", http.StatusConflict))
	case errors.Is(err, services.ErrSlotLockNotHeld):
		httpx.WriteError(ctx, w, httpx.NewError("slot_lock_not_held", "lock is not held by the caller", http.StatusConflict))
	case errors.Is(err, services.ErrSlotLockInvalidInput), errors.Is(err, services.ErrAvailabilityInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAvailabilitySpaceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("space_not_found", "space not found", http.StatusNotFound))
	default:
		writeRepositoryError(ctx, w, err)
	}
}
