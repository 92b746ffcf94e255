package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tableside/floor/internal/auth"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 2*time.Second)
}

func writeBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_ForwardsSessionToken(t *testing.T) {
	var gotAuth, gotReqID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		writeBody(w, http.StatusOK, map[string]interface{}{"tables": []Table{{ID: 1, Status: "AVAILABLE"}}})
	})

	ctx := auth.WithSession(context.Background(), auth.Session{Token: "abc"})
	tables, err := c.ListTables(ctx)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) != 1 || tables[0].ID != 1 {
		t.Errorf("tables: got %+v", tables)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("authorization: got %q, want %q", gotAuth, "Bearer abc")
	}
	if gotReqID == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestClient_APIErrorCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusConflict, map[string]string{"message": "booking already confirmed"})
	})

	_, err := c.ConfirmBooking(context.Background(), 9)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Errorf("status: got %d, want 409", apiErr.Status)
	}
	if apiErr.Message != "booking already confirmed" {
		t.Errorf("message: got %q", apiErr.Message)
	}
	if apiErr.Path != "/api/bookings/9/confirm" {
		t.Errorf("path: got %q", apiErr.Path)
	}
}

func TestClient_NotFoundMatchesSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusNotFound, map[string]string{"error": "no such order"})
	})

	_, err := c.GetOrder(context.Background(), 3)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(base, time.Second)
	_, err := c.ListBookings(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGetTable_FiltersList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, map[string]interface{}{"tables": []Table{{ID: 1}, {ID: 2, Status: "OCCUPIED"}}})
	})

	tbl, err := c.GetTable(context.Background(), 2)
	if err != nil {
		t.Fatalf("get table: %v", err)
	}
	if tbl.Status != "OCCUPIED" {
		t.Errorf("status: got %q", tbl.Status)
	}
	if _, err := c.GetTable(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing table: got %v, want ErrNotFound", err)
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	var body createIntentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/sepay/create" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		writeBody(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"transactionId": "SEPAY-1",
				"orderId":       11,
				"amount":        80000,
				"content":       "DH11 SEPAY1",
				"paymentUrl":    "https://qr.example/img.png",
				"status":        "PENDING",
				"expirySeconds": 300,
			},
		})
	})

	pi, err := c.CreatePaymentIntent(context.Background(), 11, decimal.NewFromInt(80000), "Order #11")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if pi.TransactionID != "SEPAY-1" || pi.ExpirySeconds != 300 {
		t.Errorf("intent: got %+v", pi)
	}
	if !pi.Amount.Equal(decimal.NewFromInt(80000)) {
		t.Errorf("amount: got %s", pi.Amount)
	}
	if body.Amount.String() != "80000" || body.OrderID != 11 {
		t.Errorf("request body: got %+v", body)
	}
}

func TestCreatePaymentIntent_RejectedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, map[string]interface{}{"success": false, "message": "order already paid"})
	})

	_, err := c.CreatePaymentIntent(context.Background(), 1, decimal.NewFromInt(1), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "order already paid" {
		t.Fatalf("expected rejection APIError, got %v", err)
	}
}

func TestGetPaymentIntentStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/sepay/status/TX-9" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		writeBody(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]string{"status": "COMPLETED"}})
	})

	status, err := c.GetPaymentIntentStatus(context.Background(), "TX-9")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != "COMPLETED" {
		t.Errorf("status: got %q", status)
	}
}

func TestOrderUnmarshal_AcceptsBothItemKeys(t *testing.T) {
	var a, b Order
	if err := json.Unmarshal([]byte(`{"id":1,"orderItems":[{"id":1,"quantity":2,"price":50000}]}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"id":2,"items":[{"id":1,"quantity":1,"price":30000}]}`), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(a.Items) != 1 || len(b.Items) != 1 {
		t.Fatalf("items: got %d and %d, want 1 and 1", len(a.Items), len(b.Items))
	}
	if !a.LineTotal().Equal(decimal.NewFromInt(100000)) {
		t.Errorf("line total: got %s", a.LineTotal())
	}
}

func TestOrderAmount_ServerOverride(t *testing.T) {
	o := Order{Items: []OrderItem{
		{Quantity: 1, Price: decimal.NewFromInt(50000)},
		{Quantity: 1, Price: decimal.NewFromInt(30000)},
	}}
	if !o.Amount().Equal(decimal.NewFromInt(80000)) {
		t.Errorf("derived amount: got %s, want 80000", o.Amount())
	}
	o.TotalAmount = decimal.NewFromInt(72000)
	if !o.Amount().Equal(decimal.NewFromInt(72000)) {
		t.Errorf("override amount: got %s, want 72000", o.Amount())
	}
}

func TestExpiryFrom(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.Local)
	if got := expiryFrom(PaymentIntent{ExpiresAt: "2026-01-02T10:05:00"}, now); got != 300 {
		t.Errorf("local timestamp: got %d, want 300", got)
	}
	if got := expiryFrom(PaymentIntent{ExpiresAt: "2026-01-02T09:00:00"}, now); got != 0 {
		t.Errorf("past timestamp: got %d, want 0", got)
	}
	if got := expiryFrom(PaymentIntent{ExpiresAt: "garbage"}, now); got != 0 {
		t.Errorf("garbage: got %d, want 0", got)
	}
	if got := expiryFrom(PaymentIntent{ExpirySeconds: 42}, now); got != 42 {
		t.Errorf("explicit: got %d, want 42", got)
	}
}
