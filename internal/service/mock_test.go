package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/enum"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/mirror"
)

// --- Mock gateway ---

// mockGateway is an in-memory gateway. Per-method errors are injected via
// errs; the payment intent calls can be overridden with the Fn fields.
type mockGateway struct {
	mu       sync.Mutex
	tables   map[int64]gateway.Table
	bookings map[int64]gateway.Booking
	orders   map[int64]gateway.Order
	nextID   int64
	calls    []string
	errs     map[string]error

	lastDraft    gateway.OrderDraft
	lastAmount   decimal.Decimal
	intentAmount decimal.Decimal
	intentSeq    int
	intentExpiry int

	createIntentFn func(ctx context.Context, orderID int64, amount decimal.Decimal) (gateway.PaymentIntent, error)
	statusFn       func(ctx context.Context, txID string) (string, error)
	cancelIntentFn func(ctx context.Context, txID string) error
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		tables:   make(map[int64]gateway.Table),
		bookings: make(map[int64]gateway.Booking),
		orders:   make(map[int64]gateway.Order),
		nextID:   1000,
		errs:     make(map[string]error),
	}
}

func (m *mockGateway) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.errs[name]
}

func (m *mockGateway) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *mockGateway) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.calls...)
}

func (m *mockGateway) setErr(name string, err error) {
	m.mu.Lock()
	m.errs[name] = err
	m.mu.Unlock()
}

func notFound(path string) error {
	return &gateway.APIError{Status: http.StatusNotFound, Message: "not found", Path: path}
}

func (m *mockGateway) GetTable(ctx context.Context, id int64) (gateway.Table, error) {
	if err := m.record("GetTable"); err != nil {
		return gateway.Table{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return gateway.Table{}, notFound("/api/tables/list")
	}
	return t, nil
}

func (m *mockGateway) UpdateTableStatus(ctx context.Context, id int64, status string) (gateway.Table, error) {
	if err := m.record("UpdateTableStatus"); err != nil {
		return gateway.Table{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tables[id]
	t.ID = id
	t.Status = status
	m.tables[id] = t
	return t, nil
}

func (m *mockGateway) CheckOutTable(ctx context.Context, id int64) (gateway.Table, error) {
	if err := m.record("CheckOutTable"); err != nil {
		return gateway.Table{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tables[id]
	t.Status = enum.TableStatusAvailable
	m.tables[id] = t
	return t, nil
}

func (m *mockGateway) GetBooking(ctx context.Context, id int64) (gateway.Booking, error) {
	if err := m.record("GetBooking"); err != nil {
		return gateway.Booking{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return gateway.Booking{}, notFound(fmt.Sprintf("/api/bookings/%d", id))
	}
	return b, nil
}

func (m *mockGateway) setBookingStatus(name string, id int64, status string) (gateway.Booking, error) {
	if err := m.record(name); err != nil {
		return gateway.Booking{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bookings[id]
	b.Status = status
	m.bookings[id] = b
	if status == enum.BookingStatusCheckedIn {
		t := m.tables[b.TableID]
		t.Status = enum.TableStatusOccupied
		m.tables[b.TableID] = t
	}
	return b, nil
}

func (m *mockGateway) ConfirmBooking(ctx context.Context, id int64) (gateway.Booking, error) {
	return m.setBookingStatus("ConfirmBooking", id, enum.BookingStatusConfirmed)
}

func (m *mockGateway) CancelBooking(ctx context.Context, id int64) (gateway.Booking, error) {
	return m.setBookingStatus("CancelBooking", id, enum.BookingStatusCancelled)
}

func (m *mockGateway) CheckInBooking(ctx context.Context, id int64) (gateway.Booking, error) {
	return m.setBookingStatus("CheckInBooking", id, enum.BookingStatusCheckedIn)
}

func (m *mockGateway) CreateCustomer(ctx context.Context, draft gateway.CustomerDraft) (gateway.Customer, error) {
	if err := m.record("CreateCustomer"); err != nil {
		return gateway.Customer{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return gateway.Customer{ID: m.nextID, Username: draft.Username, Email: draft.Email}, nil
}

func (m *mockGateway) CreateOrderWithCustomer(ctx context.Context, customerID, tableID int64, draft gateway.OrderDraft) (gateway.Order, error) {
	if err := m.record("CreateOrderWithCustomer"); err != nil {
		return gateway.Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.lastDraft = draft
	cid := customerID
	o := gateway.Order{ID: m.nextID, TableID: tableID, CustomerID: &cid, Status: draft.Status, Notes: draft.Notes}
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockGateway) GetOrder(ctx context.Context, id int64) (gateway.Order, error) {
	if err := m.record("GetOrder"); err != nil {
		return gateway.Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return gateway.Order{}, notFound(fmt.Sprintf("/api/orders/%d", id))
	}
	return o, nil
}

func (m *mockGateway) CompleteOrder(ctx context.Context, id int64) (gateway.Order, error) {
	if err := m.record("CompleteOrder"); err != nil {
		return gateway.Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.Status = enum.OrderStatusCompleted
	m.orders[id] = o
	return o, nil
}

// RecordPayment stores a payment row only; like the backend it leaves the
// order's status alone.
func (m *mockGateway) RecordPayment(ctx context.Context, orderID int64, amount decimal.Decimal, method string) (gateway.Payment, error) {
	if err := m.record("RecordPayment"); err != nil {
		return gateway.Payment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAmount = amount
	m.nextID++
	return gateway.Payment{ID: m.nextID, OrderID: orderID, Amount: amount, PaymentMethod: method, Status: enum.PaymentStatusCompleted}, nil
}

func (m *mockGateway) CreateRedirectPayment(ctx context.Context, orderID int64, returnURL, cancelURL string) (gateway.RedirectPayment, error) {
	if err := m.record("CreateRedirectPayment"); err != nil {
		return gateway.RedirectPayment{}, err
	}
	return gateway.RedirectPayment{
		PaymentID:  "pl-1",
		PaymentURL: fmt.Sprintf("https://pay.example/%d?return=%s", orderID, returnURL),
		Status:     enum.PaymentStatusPending,
	}, nil
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, orderID int64, amount decimal.Decimal, description string) (gateway.PaymentIntent, error) {
	if err := m.record("CreatePaymentIntent"); err != nil {
		return gateway.PaymentIntent{}, err
	}
	m.mu.Lock()
	m.intentAmount = amount
	fn := m.createIntentFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, orderID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intentSeq++
	return gateway.PaymentIntent{
		TransactionID: fmt.Sprintf("tx-%d", m.intentSeq),
		OrderID:       orderID,
		Amount:        amount,
		Status:        enum.PaymentStatusPending,
		Content:       fmt.Sprintf("ORDER%d", orderID),
		ExpirySeconds: m.intentExpiry,
	}, nil
}

func (m *mockGateway) GetPaymentIntentStatus(ctx context.Context, txID string) (string, error) {
	if err := m.record("GetPaymentIntentStatus"); err != nil {
		return "", err
	}
	m.mu.Lock()
	fn := m.statusFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, txID)
	}
	return enum.PaymentStatusPending, nil
}

func (m *mockGateway) CancelPaymentIntent(ctx context.Context, txID string) error {
	if err := m.record("CancelPaymentIntent"); err != nil {
		return err
	}
	m.mu.Lock()
	fn := m.cancelIntentFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, txID)
	}
	return nil
}

// --- Recorders ---

type mockReconciler struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *mockReconciler) ScheduleRefresh(delay time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, delay)
	r.mu.Unlock()
}

func (r *mockReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type mockSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *mockSink) Publish(eventType string, payload interface{}) {
	s.mu.Lock()
	s.events = append(s.events, recordedEvent{eventType, payload})
	s.mu.Unlock()
}

func (s *mockSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// --- Test helpers ---

var (
	staff    = auth.Session{UserID: 7, Username: "ayu", Role: enum.RoleStaff, Token: "staff-token"}
	customer = auth.Session{UserID: 9, Username: "guest", Role: enum.RoleCustomer, Token: "cust-token"}
)

type floorFixture struct {
	gw       *mockGateway
	store    *mirror.Store
	rec      *mockReconciler
	sink     *mockSink
	tables   *TableCoordinator
	bookings *BookingWorkflow
	checkout *CheckoutOrchestrator
}

// newFloor wires every workflow over one mock gateway. The mirror starts
// with a snapshot of the gateway's current state.
func newFloor(t *testing.T, gw *mockGateway) *floorFixture {
	t.Helper()
	store := mirror.NewStore()
	snap := mirror.Snapshot{}
	for _, tbl := range gw.tables {
		snap.Tables = append(snap.Tables, tbl)
	}
	for _, b := range gw.bookings {
		snap.Bookings = append(snap.Bookings, b)
	}
	for _, o := range gw.orders {
		snap.Orders = append(snap.Orders, o)
	}
	store.Replace(snap, time.Now())

	rec := &mockReconciler{}
	sink := &mockSink{}
	tables := NewTableCoordinator(gw, store, rec, 1500*time.Millisecond, sink)
	f := &floorFixture{
		gw:       gw,
		store:    store,
		rec:      rec,
		sink:     sink,
		tables:   tables,
		bookings: NewBookingWorkflow(gw, store, tables, rec, 1500*time.Millisecond, sink),
		checkout: NewCheckoutOrchestrator(gw, store, tables, CheckoutConfig{
			Poller:            fastPoller(),
			RedirectReturnURL: "https://floor.example/paid",
			RedirectCancelURL: "https://floor.example/cancelled",
		}, sink),
	}
	t.Cleanup(f.checkout.Close)
	return f
}

func fastPoller() PollerConfig {
	return PollerConfig{
		PollInterval:         5 * time.Millisecond,
		TickInterval:         time.Hour,
		DefaultExpirySeconds: 300,
		RequestTimeout:       time.Second,
	}
}

func lineItems(prices ...string) []gateway.OrderItem {
	items := make([]gateway.OrderItem, 0, len(prices))
	for i, p := range prices {
		items = append(items, gateway.OrderItem{
			ID:         int64(i + 1),
			MenuItemID: int64(i + 1),
			Quantity:   1,
			Price:      decimal.RequireFromString(p),
			Status:     enum.OrderItemStatusServed,
		})
	}
	return items
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func (m *mockGateway) orderStatus(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}
