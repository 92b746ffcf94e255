package gateway

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Table is a physical seating unit as the gateway reports it.
type Table struct {
	ID        int64  `json:"id"`
	TableName string `json:"tableName"`
	Capacity  int    `json:"capacity"`
	Status    string `json:"status"`
	QRCode    string `json:"qrCode,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Booking is a reservation request for a table.
type Booking struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customerId"`
	TableID    int64  `json:"tableId"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Guests     int    `json:"guests"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
}

// OrderItem is a single line on an order.
type OrderItem struct {
	ID         int64           `json:"id"`
	MenuItemID int64           `json:"menuItemId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Status     string          `json:"status"`
	Notes      string          `json:"notes,omitempty"`
}

// LineTotal is price × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the set of line items associated with a seated table.
type Order struct {
	ID          int64           `json:"id"`
	TableID     int64           `json:"tableId"`
	CustomerID  *int64          `json:"customerId,omitempty"`
	Items       []OrderItem     `json:"orderItems"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
}

// UnmarshalJSON accepts both "orderItems" and the shorter "items" key,
// which different gateway endpoints use for the same list.
func (o *Order) UnmarshalJSON(b []byte) error {
	type plain Order
	aux := struct {
		*plain
		ShortItems []OrderItem `json:"items"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(o.Items) == 0 && len(aux.ShortItems) > 0 {
		o.Items = aux.ShortItems
	}
	return nil
}

// LineTotal sums price × quantity over all line items.
func (o Order) LineTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Amount is the amount due: the server-side total when it has set one,
// otherwise the sum of the line items.
func (o Order) Amount() decimal.Decimal {
	if o.TotalAmount.IsPositive() {
		return o.TotalAmount
	}
	return o.LineTotal()
}

// OrderDraft is the body for creating an order.
type OrderDraft struct {
	Items       []OrderItem `json:"items"`
	Status      string      `json:"status"`
	TotalAmount json.Number `json:"totalAmount"`
	Notes       string      `json:"notes,omitempty"`
}

// CustomerDraft registers an ad-hoc customer identity.
type CustomerDraft struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Customer is the identity the gateway created.
type Customer struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Payment is a recorded synchronous payment.
type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
}

// PaymentIntent is a server-tracked asynchronous transfer awaiting proof of
// payment.
type PaymentIntent struct {
	TransactionID string          `json:"transactionId"`
	OrderID       int64           `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	AccountNumber string          `json:"accountNumber,omitempty"`
	AccountName   string          `json:"accountName,omitempty"`
	BankCode      string          `json:"bankCode,omitempty"`
	// Content is the transfer reference the bank matches against.
	Content string `json:"content,omitempty"`
	// PaymentURL points at the QR image for the transfer.
	PaymentURL    string `json:"paymentUrl,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
	ExpirySeconds int    `json:"expirySeconds,omitempty"`
}

// RedirectPayment is a hosted payment page the customer is sent to.
type RedirectPayment struct {
	PaymentID         string          `json:"payosPaymentId"`
	PaymentURL        string          `json:"paymentUrl"`
	Status            string          `json:"status"`
	InternalReference string          `json:"internalReference"`
	Amount            decimal.Decimal `json:"amount"`
	ExpiresAt         string          `json:"expiresAt,omitempty"`
}

// expiryFrom derives the remaining window of an intent in seconds. The
// gateway sends either expirySeconds or a local timestamp without zone.
func expiryFrom(pi PaymentIntent, now time.Time) int {
	if pi.ExpirySeconds > 0 {
		return pi.ExpirySeconds
	}
	if pi.ExpiresAt == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		t, err := time.ParseInLocation(layout, pi.ExpiresAt, time.Local)
		if err != nil {
			continue
		}
		if secs := int(t.Sub(now).Seconds()); secs > 0 {
			return secs
		}
		return 0
	}
	return 0
}
