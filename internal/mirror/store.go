// Package mirror holds the floor service's read-through copy of gateway
// state. Local patches mark an entity dirty; the next authoritative
// snapshot replaces it and clears the flag. Nothing here is ever final.
package mirror

import (
	"sort"
	"sync"
	"time"

	"github.com/tableside/floor/internal/enum"
	"github.com/tableside/floor/internal/gateway"
)

// Snapshot is one authoritative read of the floor.
type Snapshot struct {
	Tables   []gateway.Table
	Bookings []gateway.Booking
	Orders   []gateway.Order
}

// entry wraps a cached entity with its reconciliation flag.
type entry[T any] struct {
	value T
	dirty bool
}

// Stats are the staff dashboard counters.
type Stats struct {
	AvailableTables   int `json:"available_tables"`
	OccupiedTables    int `json:"occupied_tables"`
	ReservedTables    int `json:"reserved_tables"`
	MaintenanceTables int `json:"maintenance_tables"`
	ActiveOrders      int `json:"active_orders"`
	PendingBookings   int `json:"pending_bookings"`
}

// Store is the mirror. Write methods are split by entity so that only the
// owning workflow touches each kind: tables by the table coordinator,
// bookings by the booking workflow, orders by the checkout orchestrator.
type Store struct {
	mu       sync.RWMutex
	tables   map[int64]*entry[gateway.Table]
	bookings map[int64]*entry[gateway.Booking]
	orders   map[int64]*entry[gateway.Order]
	// pending maps a table to the CONFIRMED booking awaiting check-in.
	pending     map[int64]int64
	refreshedAt time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tables:   make(map[int64]*entry[gateway.Table]),
		bookings: make(map[int64]*entry[gateway.Booking]),
		orders:   make(map[int64]*entry[gateway.Order]),
		pending:  make(map[int64]int64),
	}
}

// Replace installs an authoritative snapshot, discarding every local patch.
func (s *Store) Replace(snap Snapshot, at time.Time) {
	tables := make(map[int64]*entry[gateway.Table], len(snap.Tables))
	for _, t := range snap.Tables {
		tables[t.ID] = &entry[gateway.Table]{value: t}
	}
	bookings := make(map[int64]*entry[gateway.Booking], len(snap.Bookings))
	pending := make(map[int64]int64)
	for _, b := range snap.Bookings {
		bookings[b.ID] = &entry[gateway.Booking]{value: b}
		if b.Status == enum.BookingStatusConfirmed {
			pending[b.TableID] = b.ID
		}
	}
	orders := make(map[int64]*entry[gateway.Order], len(snap.Orders))
	for _, o := range snap.Orders {
		orders[o.ID] = &entry[gateway.Order]{value: o}
	}

	s.mu.Lock()
	s.tables = tables
	s.bookings = bookings
	s.orders = orders
	s.pending = pending
	s.refreshedAt = at
	s.mu.Unlock()
}

// RefreshedAt is the time of the last authoritative snapshot.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// --- Tables ---

// Table returns the cached table.
func (s *Store) Table(id int64) (gateway.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tables[id]
	if !ok {
		return gateway.Table{}, false
	}
	return e.value, true
}

// PutTable caches an authoritative table read without marking it dirty.
func (s *Store) PutTable(t gateway.Table) {
	s.mu.Lock()
	s.tables[t.ID] = &entry[gateway.Table]{value: t}
	s.mu.Unlock()
}

// PatchTableStatus optimistically sets a table's status.
func (s *Store) PatchTableStatus(id int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tables[id]
	if !ok {
		e = &entry[gateway.Table]{value: gateway.Table{ID: id}}
		s.tables[id] = e
	}
	e.value.Status = status
	e.dirty = true
}

// Tables returns all cached tables ordered by ID.
func (s *Store) Tables() []gateway.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]gateway.Table, 0, len(s.tables))
	for _, e := range s.tables {
		out = append(out, e.value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Bookings ---

// Booking returns the cached booking.
func (s *Store) Booking(id int64) (gateway.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.bookings[id]
	if !ok {
		return gateway.Booking{}, false
	}
	return e.value, true
}

// PutBooking caches an authoritative booking read and keeps the pending
// check-in set consistent with it.
func (s *Store) PutBooking(b gateway.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = &entry[gateway.Booking]{value: b}
	s.syncPendingLocked(b)
}

// PatchBooking optimistically stores a booking as returned by a mutation.
func (s *Store) PatchBooking(b gateway.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = &entry[gateway.Booking]{value: b, dirty: true}
	s.syncPendingLocked(b)
}

func (s *Store) syncPendingLocked(b gateway.Booking) {
	if b.Status == enum.BookingStatusConfirmed {
		s.pending[b.TableID] = b.ID
		return
	}
	if s.pending[b.TableID] == b.ID {
		delete(s.pending, b.TableID)
	}
}

// Bookings returns all cached bookings ordered by ID.
func (s *Store) Bookings() []gateway.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]gateway.Booking, 0, len(s.bookings))
	for _, e := range s.bookings {
		out = append(out, e.value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConfirmedBookingsForTable returns the CONFIRMED bookings referencing a table.
func (s *Store) ConfirmedBookingsForTable(tableID int64) []gateway.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []gateway.Booking
	for _, e := range s.bookings {
		if e.value.TableID == tableID && e.value.Status == enum.BookingStatusConfirmed {
			out = append(out, e.value)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Pending check-ins ---

// PendingCheckIns returns table → booking for tables awaiting check-in.
func (s *Store) PendingCheckIns() map[int64]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int64, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// RemovePendingCheckIn drops a table from the pending set until the next
// snapshot says otherwise.
func (s *Store) RemovePendingCheckIn(tableID int64) {
	s.mu.Lock()
	delete(s.pending, tableID)
	s.mu.Unlock()
}

// --- Orders ---

// Order returns the cached order.
func (s *Store) Order(id int64) (gateway.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.orders[id]
	if !ok {
		return gateway.Order{}, false
	}
	return e.value, true
}

// PutOrder caches an authoritative order read.
func (s *Store) PutOrder(o gateway.Order) {
	s.mu.Lock()
	s.orders[o.ID] = &entry[gateway.Order]{value: o}
	s.mu.Unlock()
}

// PatchOrder optimistically stores an order.
func (s *Store) PatchOrder(o gateway.Order) {
	s.mu.Lock()
	s.orders[o.ID] = &entry[gateway.Order]{value: o, dirty: true}
	s.mu.Unlock()
}

// PatchOrderStatus optimistically sets an order's status.
func (s *Store) PatchOrderStatus(id int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.orders[id]
	if !ok {
		e = &entry[gateway.Order]{value: gateway.Order{ID: id}}
		s.orders[id] = e
	}
	e.value.Status = status
	e.dirty = true
}

// Orders returns all cached orders ordered by ID.
func (s *Store) Orders() []gateway.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]gateway.Order, 0, len(s.orders))
	for _, e := range s.orders {
		out = append(out, e.value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Reconciliation ---

// Dirty lists the IDs patched locally since the last snapshot.
type Dirty struct {
	Tables   []int64 `json:"tables"`
	Bookings []int64 `json:"bookings"`
	Orders   []int64 `json:"orders"`
}

// Empty reports whether nothing awaits reconciliation.
func (d Dirty) Empty() bool {
	return len(d.Tables) == 0 && len(d.Bookings) == 0 && len(d.Orders) == 0
}

// Dirty returns the entities awaiting reconciliation.
func (s *Store) Dirty() Dirty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Dirty{
		Tables:   dirtyIDs(s.tables),
		Bookings: dirtyIDs(s.bookings),
		Orders:   dirtyIDs(s.orders),
	}
}

func dirtyIDs[T any](m map[int64]*entry[T]) []int64 {
	ids := []int64{}
	for id, e := range m {
		if e.dirty {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats computes the dashboard counters from the cache.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, e := range s.tables {
		switch e.value.Status {
		case enum.TableStatusAvailable:
			st.AvailableTables++
		case enum.TableStatusOccupied:
			st.OccupiedTables++
		case enum.TableStatusReserved, enum.TableStatusPendingCheckIn:
			st.ReservedTables++
		case enum.TableStatusMaintenance:
			st.MaintenanceTables++
		}
	}
	for _, e := range s.orders {
		if e.value.Status == enum.OrderStatusActive || e.value.Status == enum.OrderStatusPlaced {
			st.ActiveOrders++
		}
	}
	for _, e := range s.bookings {
		if e.value.Status == enum.BookingStatusPending {
			st.PendingBookings++
		}
	}
	return st
}
