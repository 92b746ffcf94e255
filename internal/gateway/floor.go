package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// --- Tables ---

// ListTables returns every table.
func (c *Client) ListTables(ctx context.Context) ([]Table, error) {
	var resp struct {
		Tables []Table `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tables/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// GetTable returns a single table. The backend has no single-table read,
// so this filters the list.
func (c *Client) GetTable(ctx context.Context, id int64) (Table, error) {
	tables, err := c.ListTables(ctx)
	if err != nil {
		return Table{}, err
	}
	for _, t := range tables {
		if t.ID == id {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("table %d: %w", id, ErrNotFound)
}

// UpdateTableStatus sets a table's status.
func (c *Client) UpdateTableStatus(ctx context.Context, id int64, status string) (Table, error) {
	var resp struct {
		Table Table `json:"table"`
	}
	path := fmt.Sprintf("/api/tables/%d/status-update/%s", id, url.PathEscape(status))
	if err := c.do(ctx, http.MethodPut, path, nil, &resp); err != nil {
		return Table{}, err
	}
	return resp.Table, nil
}

// CheckOutTable clears a table's occupancy.
func (c *Client) CheckOutTable(ctx context.Context, id int64) (Table, error) {
	var resp struct {
		Table Table `json:"table"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tables/%d/checkout", id), nil, &resp); err != nil {
		return Table{}, err
	}
	return resp.Table, nil
}

// --- Bookings ---

// ListBookings returns every booking.
func (c *Client) ListBookings(ctx context.Context) ([]Booking, error) {
	var resp struct {
		Bookings []Booking `json:"bookings"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/bookings/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bookings, nil
}

// GetBooking returns the authoritative copy of a booking.
func (c *Client) GetBooking(ctx context.Context, id int64) (Booking, error) {
	var resp struct {
		Booking Booking `json:"booking"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/bookings/%d", id), nil, &resp); err != nil {
		return Booking{}, err
	}
	return resp.Booking, nil
}

func (c *Client) bookingAction(ctx context.Context, id int64, action string) (Booking, error) {
	var resp struct {
		Booking Booking `json:"booking"`
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/bookings/%d/%s", id, action), nil, &resp); err != nil {
		return Booking{}, err
	}
	return resp.Booking, nil
}

// ConfirmBooking moves a booking to CONFIRMED.
func (c *Client) ConfirmBooking(ctx context.Context, id int64) (Booking, error) {
	return c.bookingAction(ctx, id, "confirm")
}

// CancelBooking moves a booking to CANCELLED.
func (c *Client) CancelBooking(ctx context.Context, id int64) (Booking, error) {
	return c.bookingAction(ctx, id, "cancel")
}

// CheckInBooking marks the party seated.
func (c *Client) CheckInBooking(ctx context.Context, id int64) (Booking, error) {
	return c.bookingAction(ctx, id, "checkin")
}

// --- Orders & customers ---

// ListOrders returns every order.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/orders/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetOrder returns the authoritative copy of an order.
func (c *Client) GetOrder(ctx context.Context, id int64) (Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/orders/%d", id), nil, &resp); err != nil {
		return Order{}, err
	}
	return resp.Order, nil
}

// CreateOrderWithCustomer opens an order on a table for a customer.
func (c *Client) CreateOrderWithCustomer(ctx context.Context, customerID, tableID int64, draft OrderDraft) (Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	path := fmt.Sprintf("/api/orders/create-with-customer/%d/table/%d", customerID, tableID)
	if err := c.do(ctx, http.MethodPost, path, draft, &resp); err != nil {
		return Order{}, err
	}
	return resp.Order, nil
}

// CompleteOrder marks a settled order COMPLETED.
func (c *Client) CompleteOrder(ctx context.Context, id int64) (Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/orders/%d/checkout", id), nil, &resp); err != nil {
		return Order{}, err
	}
	return resp.Order, nil
}

// CreateCustomer registers an ad-hoc customer identity.
func (c *Client) CreateCustomer(ctx context.Context, draft CustomerDraft) (Customer, error) {
	var resp struct {
		User Customer `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/users/register", draft, &resp); err != nil {
		return Customer{}, err
	}
	return resp.User, nil
}
