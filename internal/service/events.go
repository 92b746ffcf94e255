package service

import (
	"context"
	"sync"
	"time"

	"github.com/tableside/floor/internal/auth"
)

// Event types pushed to connected staff screens.
const (
	EventTableUpdated   = "table.updated"
	EventBookingUpdated = "booking.updated"
	EventOrderUpdated   = "order.updated"
	EventPaymentUpdated = "payment.updated"
)

// EventSink receives state changes for realtime fan-out.
type EventSink interface {
	Publish(eventType string, payload interface{})
}

type nopSink struct{}

func (nopSink) Publish(string, interface{}) {}

func sinkOrNop(s EventSink) EventSink {
	if s == nil {
		return nopSink{}
	}
	return s
}

// Reconciler schedules an authoritative refresh after an optimistic patch.
type Reconciler interface {
	ScheduleRefresh(delay time.Duration)
}

// begin checks that sess may act and scopes it to ctx for the gateway.
func begin(ctx context.Context, sess auth.Session) (context.Context, error) {
	if !sess.CanOperateFloor() {
		return ctx, ErrForbidden
	}
	return auth.WithSession(ctx, sess), nil
}

// keyedMutex serializes operations per entity ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
