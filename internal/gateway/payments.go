package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

type recordPaymentRequest struct {
	Amount        json.Number `json:"amount"`
	PaymentMethod string      `json:"paymentMethod"`
}

// RecordPayment records a synchronous (cash) payment against an order.
func (c *Client) RecordPayment(ctx context.Context, orderID int64, amount decimal.Decimal, method string) (Payment, error) {
	var resp struct {
		Payment Payment `json:"payment"`
	}
	body := recordPaymentRequest{Amount: json.Number(amount.String()), PaymentMethod: method}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/payments/process/%d", orderID), body, &resp); err != nil {
		return Payment{}, err
	}
	return resp.Payment, nil
}

type createIntentRequest struct {
	OrderID     int64       `json:"orderId"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description,omitempty"`
}

// CreatePaymentIntent opens an asynchronous bank-transfer intent. The
// returned intent carries ExpirySeconds derived from the gateway's
// expiresAt when it did not send the window directly.
func (c *Client) CreatePaymentIntent(ctx context.Context, orderID int64, amount decimal.Decimal, description string) (PaymentIntent, error) {
	const path = "/api/payments/sepay/create"
	var resp envelope[PaymentIntent]
	body := createIntentRequest{OrderID: orderID, Amount: json.Number(amount.String()), Description: description}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return PaymentIntent{}, err
	}
	if err := resp.check(path); err != nil {
		return PaymentIntent{}, err
	}
	if resp.Data.TransactionID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: %s: missing transactionId", ErrBadResponse, path)
	}
	pi := resp.Data
	pi.ExpirySeconds = expiryFrom(pi, time.Now())
	return pi, nil
}

// GetPaymentIntentStatus returns the intent's current status.
func (c *Client) GetPaymentIntentStatus(ctx context.Context, transactionID string) (string, error) {
	path := "/api/payments/sepay/status/" + url.PathEscape(transactionID)
	var resp envelope[struct {
		Status string `json:"status"`
	}]
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if err := resp.check(path); err != nil {
		return "", err
	}
	return resp.Data.Status, nil
}

// CancelPaymentIntent asks the gateway to drop the intent. Best effort.
func (c *Client) CancelPaymentIntent(ctx context.Context, transactionID string) error {
	path := "/api/payments/sepay/cancel/" + url.PathEscape(transactionID)
	var resp envelope[json.RawMessage]
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return err
	}
	return resp.check(path)
}

type redirectRequest struct {
	OrderID   int64  `json:"orderId"`
	ReturnURL string `json:"returnUrl,omitempty"`
	CancelURL string `json:"cancelUrl,omitempty"`
}

// CreateRedirectPayment creates a hosted payment page for the order.
func (c *Client) CreateRedirectPayment(ctx context.Context, orderID int64, returnURL, cancelURL string) (RedirectPayment, error) {
	const path = "/api/payos/link"
	var resp RedirectPayment
	body := redirectRequest{OrderID: orderID, ReturnURL: returnURL, CancelURL: cancelURL}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return RedirectPayment{}, err
	}
	if resp.PaymentURL == "" {
		return RedirectPayment{}, fmt.Errorf("%w: %s: missing paymentUrl", ErrBadResponse, path)
	}
	return resp, nil
}
