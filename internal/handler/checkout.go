package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/service"
)

// CheckoutService defines the settlement operations needed by order
// handlers. Satisfied by *service.CheckoutOrchestrator.
type CheckoutService interface {
	Checkout(ctx context.Context, sess auth.Session, orderID int64, method string) (service.CheckoutResult, error)
	Payment(orderID int64) (service.PaymentView, bool)
	CancelPayment(ctx context.Context, sess auth.Session, orderID int64) (service.PaymentSnapshot, error)
	RetryPayment(ctx context.Context, sess auth.Session, orderID int64) (service.PaymentSnapshot, error)
}

// CheckoutHandler handles order settlement endpoints.
type CheckoutHandler struct {
	svc CheckoutService
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(svc CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

// RegisterRoutes registers settlement endpoints on the given Chi router.
// Expected to be mounted at /orders
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/checkout", h.Checkout)
	r.Get("/{id}/payment", h.GetPayment)
	r.Post("/{id}/payment/cancel", h.CancelPayment)
	r.Post("/{id}/payment/retry", h.RetryPayment)
}

type checkoutRequest struct {
	Method string `json:"method"`
}

// Checkout handles POST /orders/{id}/checkout.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Method == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "method is required"})
		return
	}

	res, err := h.svc.Checkout(r.Context(), sess, orderID, strings.ToUpper(req.Method))
	if err != nil {
		// A failed intent still has a snapshot worth showing.
		var partial *service.PartialFailureError
		if res.Intent != nil && !errors.As(err, &partial) {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error(), "result": res})
			return
		}
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Status == service.CheckoutAwaitingPayment {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// GetPayment handles GET /orders/{id}/payment.
func (h *CheckoutHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	view, found := h.svc.Payment(orderID)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no payment in progress for this order"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CancelPayment handles POST /orders/{id}/payment/cancel.
func (h *CheckoutHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}

	snap, err := h.svc.CancelPayment(r.Context(), sess, orderID)
	if errors.Is(err, service.ErrCancelUnconfirmed) {
		// Cancelled locally; tell the screen the gateway may still settle it.
		writeJSON(w, http.StatusOK, map[string]interface{}{"payment": snap, "warning": err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": snap})
}

// RetryPayment handles POST /orders/{id}/payment/retry.
func (h *CheckoutHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}

	snap, err := h.svc.RetryPayment(r.Context(), sess, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"payment": snap})
}
