package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/service"
)

// TableService defines the table workflows needed by table handlers.
// Satisfied by *service.TableCoordinator.
type TableService interface {
	SetStatus(ctx context.Context, sess auth.Session, tableID int64, status string) (gateway.Table, error)
	CheckIn(ctx context.Context, sess auth.Session, tableID, bookingID int64) (service.CheckInResult, error)
	WalkInCheckIn(ctx context.Context, sess auth.Session, tableID int64, guest service.Guest) (service.WalkInResult, error)
	CheckOut(ctx context.Context, sess auth.Session, tableID int64) (gateway.Table, error)
}

// TableHandler handles table endpoints.
type TableHandler struct {
	svc TableService
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableService) *TableHandler {
	return &TableHandler{svc: svc}
}

// RegisterRoutes registers table endpoints on the given Chi router.
// Expected to be mounted at /tables
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Put("/{id}/status/{status}", h.SetStatus)
	r.Post("/{id}/check-in", h.CheckIn)
	r.Post("/{id}/walk-in", h.WalkIn)
	r.Post("/{id}/check-out", h.CheckOut)
}

// --- Request / Response types ---

type checkInRequest struct {
	BookingID int64 `json:"booking_id"`
}

type walkInRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type walkInResponse struct {
	Table    gateway.Table    `json:"table"`
	Order    gateway.Order    `json:"order"`
	Customer gateway.Customer `json:"customer"`
}

type checkInResponse struct {
	Table   gateway.Table   `json:"table"`
	Booking gateway.Booking `json:"booking"`
}

// --- Handlers ---

// SetStatus handles PUT /tables/{id}/status/{status}.
func (h *TableHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	tableID, ok := pathID(w, r, "id", "table")
	if !ok {
		return
	}
	status := strings.ToUpper(chi.URLParam(r, "status"))

	table, err := h.svc.SetStatus(r.Context(), sess, tableID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// CheckIn handles POST /tables/{id}/check-in.
func (h *TableHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	tableID, ok := pathID(w, r, "id", "table")
	if !ok {
		return
	}

	var req checkInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BookingID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "booking_id is required"})
		return
	}

	res, err := h.svc.CheckIn(r.Context(), sess, tableID, req.BookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInResponse{Table: res.Table, Booking: res.Booking})
}

// WalkIn handles POST /tables/{id}/walk-in.
func (h *TableHandler) WalkIn(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	tableID, ok := pathID(w, r, "id", "table")
	if !ok {
		return
	}

	var req walkInRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.WalkInCheckIn(r.Context(), sess, tableID, service.Guest{Name: req.Name, Phone: req.Phone})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, walkInResponse{Table: res.Table, Order: res.Order, Customer: res.Customer})
}

// CheckOut handles POST /tables/{id}/check-out.
func (h *TableHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	tableID, ok := pathID(w, r, "id", "table")
	if !ok {
		return
	}

	table, err := h.svc.CheckOut(r.Context(), sess, tableID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}
