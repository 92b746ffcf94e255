package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/service"
)

// BookingService defines the booking workflows needed by booking handlers.
// Satisfied by *service.BookingWorkflow.
type BookingService interface {
	Approve(ctx context.Context, sess auth.Session, bookingID int64) (gateway.Booking, error)
	Reject(ctx context.Context, sess auth.Session, bookingID int64) (gateway.Booking, error)
	Cancel(ctx context.Context, sess auth.Session, bookingID int64) (gateway.Booking, error)
	CheckIn(ctx context.Context, sess auth.Session, bookingID int64) (service.CheckInResult, error)
}

// BookingHandler handles booking endpoints.
type BookingHandler struct {
	svc BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// RegisterRoutes registers booking endpoints on the given Chi router.
// Expected to be mounted at /bookings
func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/approve", h.transition(h.svc.Approve))
	r.Post("/{id}/reject", h.transition(h.svc.Reject))
	r.Post("/{id}/cancel", h.transition(h.svc.Cancel))
	r.Post("/{id}/check-in", h.CheckIn)
}

type bookingTransition func(ctx context.Context, sess auth.Session, bookingID int64) (gateway.Booking, error)

// transition handles POST /bookings/{id}/approve|reject|cancel.
func (h *BookingHandler) transition(fn bookingTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(w, r)
		if !ok {
			return
		}
		bookingID, ok := pathID(w, r, "id", "booking")
		if !ok {
			return
		}

		booking, err := fn(r.Context(), sess, bookingID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	}
}

// CheckIn handles POST /bookings/{id}/check-in.
func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id", "booking")
	if !ok {
		return
	}

	res, err := h.svc.CheckIn(r.Context(), sess, bookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInResponse{Table: res.Table, Booking: res.Booking})
}
