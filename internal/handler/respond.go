package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

type partialFailureResponse struct {
	Error      string   `json:"error"`
	Kind       string   `json:"kind"`
	Completed  []string `json:"completed"`
	FailedStep string   `json:"failed_step"`
	CustomerID int64    `json:"customer_id,omitempty"`
	OrderID    int64    `json:"order_id,omitempty"`
}

// writeError maps a workflow error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var (
		partial *service.PartialFailureError
		apiErr  *gateway.APIError
	)
	switch {
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrInvalidMethod):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrPrecondition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &partial):
		writeJSON(w, http.StatusBadGateway, partialFailureResponse{
			Error:      err.Error(),
			Kind:       "partial_failure",
			Completed:  partial.Completed,
			FailedStep: partial.FailedStep,
			CustomerID: partial.CustomerID,
			OrderID:    partial.OrderID,
		})
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{"error": apiErr.Message})
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrBadResponse):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// session returns the caller's session or writes 401.
func session(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	return sess, ok
}

// pathID parses a positive integer URL parameter or writes 400.
func pathID(w http.ResponseWriter, r *http.Request, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + label + " ID"})
		return 0, false
	}
	return id, true
}

// decodeBody decodes an optional JSON body. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}
