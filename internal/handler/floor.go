package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/mirror"
)

// FloorStore defines the mirror reads needed by the floor handler.
// Satisfied by *mirror.Store.
type FloorStore interface {
	Tables() []gateway.Table
	Bookings() []gateway.Booking
	Orders() []gateway.Order
	PendingCheckIns() map[int64]int64
	Dirty() mirror.Dirty
	Stats() mirror.Stats
	RefreshedAt() time.Time
}

// Refresher forces an authoritative snapshot. Satisfied by *mirror.Refresher.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

// FloorHandler serves the staff screens' view of the floor.
type FloorHandler struct {
	store     FloorStore
	refresher Refresher
}

// NewFloorHandler creates a new FloorHandler.
func NewFloorHandler(store FloorStore, refresher Refresher) *FloorHandler {
	return &FloorHandler{store: store, refresher: refresher}
}

// RegisterRoutes registers floor endpoints on the given Chi router.
// Expected to be mounted at /floor
func (h *FloorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Post("/refresh", h.Refresh)
}

type floorResponse struct {
	Tables   []gateway.Table   `json:"tables"`
	Bookings []gateway.Booking `json:"bookings"`
	Orders   []gateway.Order   `json:"orders"`
	// PendingCheckIns maps table ID to the booking it is held for.
	PendingCheckIns map[int64]int64 `json:"pending_check_ins"`
	Dirty           mirror.Dirty    `json:"dirty"`
	Stats           mirror.Stats    `json:"stats"`
	RefreshedAt     *time.Time      `json:"refreshed_at"`
}

// Get handles GET /floor.
func (h *FloorHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := floorResponse{
		Tables:          h.store.Tables(),
		Bookings:        h.store.Bookings(),
		Orders:          h.store.Orders(),
		PendingCheckIns: h.store.PendingCheckIns(),
		Dirty:           h.store.Dirty(),
		Stats:           h.store.Stats(),
	}
	if at := h.store.RefreshedAt(); !at.IsZero() {
		resp.RefreshedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /floor/refresh.
func (h *FloorHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, ok := session(w, r); !ok {
		return
	}
	if err := h.refresher.RefreshNow(r.Context()); err != nil {
		log.Printf("WARN: manual floor refresh: %v", err)
		writeError(w, err)
		return
	}
	h.Get(w, r)
}
