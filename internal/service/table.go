package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/enum"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/mirror"
)

// TableGateway defines the gateway calls the table coordinator needs.
// Satisfied by *gateway.Client.
type TableGateway interface {
	GetTable(ctx context.Context, id int64) (gateway.Table, error)
	GetBooking(ctx context.Context, id int64) (gateway.Booking, error)
	UpdateTableStatus(ctx context.Context, id int64, status string) (gateway.Table, error)
	CheckInBooking(ctx context.Context, id int64) (gateway.Booking, error)
	CheckOutTable(ctx context.Context, id int64) (gateway.Table, error)
	CreateCustomer(ctx context.Context, draft gateway.CustomerDraft) (gateway.Customer, error)
	CreateOrderWithCustomer(ctx context.Context, customerID, tableID int64, draft gateway.OrderDraft) (gateway.Order, error)
}

// TableCoordinator maps floor events (booking check-in, walk-in, checkout,
// maintenance toggles) onto table status. It is the only writer of table
// status in the mirror.
type TableCoordinator struct {
	gw             TableGateway
	store          *mirror.Store
	reconciler     Reconciler
	reconcileDelay time.Duration
	events         EventSink
	locks          keyedMutex
}

// NewTableCoordinator creates a TableCoordinator.
func NewTableCoordinator(gw TableGateway, store *mirror.Store, reconciler Reconciler, reconcileDelay time.Duration, events EventSink) *TableCoordinator {
	return &TableCoordinator{
		gw:             gw,
		store:          store,
		reconciler:     reconciler,
		reconcileDelay: reconcileDelay,
		events:         sinkOrNop(events),
	}
}

// Guest describes a walk-in party.
type Guest struct {
	Name  string
	Phone string
}

// CheckInResult is the outcome of a booking check-in.
type CheckInResult struct {
	Table   gateway.Table
	Booking gateway.Booking
}

// WalkInResult is the outcome of a walk-in check-in.
type WalkInResult struct {
	Table    gateway.Table
	Order    gateway.Order
	Customer gateway.Customer
}

// SetStatus asks the gateway to set a table's status. The gateway decides
// legality; only locally contradictory requests are refused here.
func (c *TableCoordinator) SetStatus(ctx context.Context, sess auth.Session, tableID int64, status string) (gateway.Table, error) {
	const op = "set table status"
	ctx, err := begin(ctx, sess)
	if err != nil {
		return gateway.Table{}, err
	}
	if !enum.IsTableStatus(status) {
		return gateway.Table{}, &PreconditionError{Op: op, Reason: fmt.Sprintf("unknown status %q", status), Cause: ErrInvalidStatus}
	}

	unlock := c.locks.lock(tableID)
	defer unlock()

	table, err := c.table(ctx, tableID)
	if err != nil {
		return gateway.Table{}, err
	}
	if table.Status == enum.TableStatusOccupied && status == enum.TableStatusAvailable {
		return gateway.Table{}, precondition(op, "table %d is OCCUPIED; check it out instead", tableID)
	}
	if status == enum.TableStatusPendingCheckIn {
		if n := len(c.store.ConfirmedBookingsForTable(tableID)); n != 1 {
			return gateway.Table{}, precondition(op, "table %d has %d confirmed bookings, want exactly 1", tableID, n)
		}
	}

	updated, err := c.gw.UpdateTableStatus(ctx, tableID, status)
	if err != nil {
		return gateway.Table{}, fmt.Errorf("update table %d status: %w", tableID, err)
	}
	updated = fillTable(updated, table, status)
	c.store.PatchTableStatus(tableID, updated.Status)
	c.events.Publish(EventTableUpdated, updated)
	return updated, nil
}

// CheckIn seats the party of a CONFIRMED booking at its table. The mirror
// is patched immediately and a reconciling refresh is scheduled.
func (c *TableCoordinator) CheckIn(ctx context.Context, sess auth.Session, tableID, bookingID int64) (CheckInResult, error) {
	const op = "check in"
	ctx, err := begin(ctx, sess)
	if err != nil {
		return CheckInResult{}, err
	}

	unlock := c.locks.lock(tableID)
	defer unlock()

	booking, err := c.booking(ctx, bookingID)
	if err != nil {
		return CheckInResult{}, err
	}
	if booking.Status != enum.BookingStatusConfirmed {
		return CheckInResult{}, precondition(op, "booking %d is %s, want CONFIRMED", bookingID, booking.Status)
	}
	if booking.TableID != tableID {
		return CheckInResult{}, precondition(op, "booking %d is for table %d, not table %d", bookingID, booking.TableID, tableID)
	}

	table, err := c.table(ctx, tableID)
	if err != nil {
		return CheckInResult{}, err
	}
	switch table.Status {
	case enum.TableStatusAvailable, enum.TableStatusReserved:
		// A just-approved booking's table only turns RESERVED at the next
		// refresh; the CONFIRMED booking for this table is the authority.
	case enum.TableStatusPendingCheckIn:
		confirmed := c.store.ConfirmedBookingsForTable(tableID)
		if len(confirmed) != 1 || confirmed[0].ID != bookingID {
			return CheckInResult{}, precondition(op, "table %d is PENDING_CHECKIN with %d confirmed bookings; refresh before checking in", tableID, len(confirmed))
		}
	default:
		return CheckInResult{}, precondition(op, "table %d is %s", tableID, table.Status)
	}

	updated, err := c.gw.CheckInBooking(ctx, bookingID)
	if err != nil {
		return CheckInResult{}, fmt.Errorf("check in booking %d: %w", bookingID, err)
	}
	if updated.ID == 0 {
		updated = booking
		updated.Status = enum.BookingStatusCheckedIn
	}

	c.store.RemovePendingCheckIn(tableID)
	c.store.PatchBooking(updated)
	c.store.PatchTableStatus(tableID, enum.TableStatusOccupied)
	c.reconciler.ScheduleRefresh(c.reconcileDelay)

	table.Status = enum.TableStatusOccupied
	c.events.Publish(EventBookingUpdated, updated)
	c.events.Publish(EventTableUpdated, table)
	return CheckInResult{Table: table, Booking: updated}, nil
}

// WalkInCheckIn seats guests without a booking: create an ad-hoc customer,
// open an empty order, occupy the table. There is no compensation; a
// failure after the first step returns a *PartialFailureError naming what
// was left behind.
func (c *TableCoordinator) WalkInCheckIn(ctx context.Context, sess auth.Session, tableID int64, guest Guest) (WalkInResult, error) {
	const op = "walk-in check-in"
	ctx, err := begin(ctx, sess)
	if err != nil {
		return WalkInResult{}, err
	}

	unlock := c.locks.lock(tableID)
	defer unlock()

	table, err := c.table(ctx, tableID)
	if err != nil {
		return WalkInResult{}, err
	}
	if table.Status != enum.TableStatusAvailable {
		return WalkInResult{}, precondition(op, "table %d is %s, want AVAILABLE", tableID, table.Status)
	}
	if bookingID, ok := c.store.PendingCheckIns()[tableID]; ok {
		return WalkInResult{}, precondition(op, "table %d is held for booking %d", tableID, bookingID)
	}

	// Step 1: customer identity.
	handle := "walkin-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	customer, err := c.gw.CreateCustomer(ctx, gateway.CustomerDraft{
		Username: handle,
		Email:    handle + "@walk-in.local",
		Password: uuid.NewString(),
	})
	if err != nil {
		return WalkInResult{}, fmt.Errorf("create walk-in customer: %w", err)
	}

	// Step 2: empty order.
	order, err := c.gw.CreateOrderWithCustomer(ctx, customer.ID, tableID, gateway.OrderDraft{
		Items:       []gateway.OrderItem{},
		Status:      enum.OrderStatusPlaced,
		TotalAmount: "0",
		Notes:       guestNotes(guest),
	})
	if err != nil {
		log.Printf("ERROR: walk-in table %d: customer %d created but order failed: %v", tableID, customer.ID, err)
		return WalkInResult{}, &PartialFailureError{
			Op:         op,
			Completed:  []string{"create customer"},
			FailedStep: "create order",
			CustomerID: customer.ID,
			Err:        err,
		}
	}

	// Step 3: occupy the table.
	updated, err := c.gw.UpdateTableStatus(ctx, tableID, enum.TableStatusOccupied)
	if err != nil {
		log.Printf("ERROR: walk-in table %d: order %d created but table not occupied: %v", tableID, order.ID, err)
		c.reconciler.ScheduleRefresh(c.reconcileDelay)
		return WalkInResult{}, &PartialFailureError{
			Op:         op,
			Completed:  []string{"create customer", "create order"},
			FailedStep: "occupy table",
			CustomerID: customer.ID,
			OrderID:    order.ID,
			Err:        err,
		}
	}
	updated = fillTable(updated, table, enum.TableStatusOccupied)

	if order.TableID == 0 {
		order.TableID = tableID
	}
	c.store.PatchTableStatus(tableID, updated.Status)
	c.store.PatchOrder(order)

	c.events.Publish(EventTableUpdated, updated)
	c.events.Publish(EventOrderUpdated, order)
	return WalkInResult{Table: updated, Order: order, Customer: customer}, nil
}

// CheckOut clears an OCCUPIED table. Whether its order is settled is the
// checkout orchestrator's concern, not checked here.
func (c *TableCoordinator) CheckOut(ctx context.Context, sess auth.Session, tableID int64) (gateway.Table, error) {
	const op = "check out"
	ctx, err := begin(ctx, sess)
	if err != nil {
		return gateway.Table{}, err
	}

	unlock := c.locks.lock(tableID)
	defer unlock()

	table, err := c.table(ctx, tableID)
	if err != nil {
		return gateway.Table{}, err
	}
	if table.Status != enum.TableStatusOccupied {
		return gateway.Table{}, precondition(op, "table %d is %s, want OCCUPIED", tableID, table.Status)
	}

	updated, err := c.gw.CheckOutTable(ctx, tableID)
	if err != nil {
		return gateway.Table{}, fmt.Errorf("check out table %d: %w", tableID, err)
	}
	updated = fillTable(updated, table, enum.TableStatusAvailable)
	c.store.PatchTableStatus(tableID, updated.Status)
	c.events.Publish(EventTableUpdated, updated)
	return updated, nil
}

// table reads through the mirror, falling back to the gateway.
func (c *TableCoordinator) table(ctx context.Context, id int64) (gateway.Table, error) {
	if t, ok := c.store.Table(id); ok {
		return t, nil
	}
	t, err := c.gw.GetTable(ctx, id)
	if err != nil {
		return gateway.Table{}, fmt.Errorf("get table %d: %w", id, err)
	}
	c.store.PutTable(t)
	return t, nil
}

func (c *TableCoordinator) booking(ctx context.Context, id int64) (gateway.Booking, error) {
	if b, ok := c.store.Booking(id); ok {
		return b, nil
	}
	b, err := c.gw.GetBooking(ctx, id)
	if err != nil {
		return gateway.Booking{}, fmt.Errorf("get booking %d: %w", id, err)
	}
	c.store.PutBooking(b)
	return b, nil
}

// fillTable completes a sparse gateway answer from the cached row.
func fillTable(updated, cached gateway.Table, status string) gateway.Table {
	if updated.ID == 0 {
		updated = cached
		updated.Status = status
	}
	if updated.Status == "" {
		updated.Status = status
	}
	return updated
}

func guestNotes(g Guest) string {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		return "Walk-in guest"
	}
	if phone := strings.TrimSpace(g.Phone); phone != "" {
		return fmt.Sprintf("Guest: %s - %s", name, phone)
	}
	return "Guest: " + name
}
