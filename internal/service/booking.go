package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/enum"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/mirror"
)

// BookingGateway defines the gateway calls the booking workflow needs.
type BookingGateway interface {
	GetBooking(ctx context.Context, id int64) (gateway.Booking, error)
	ConfirmBooking(ctx context.Context, id int64) (gateway.Booking, error)
	CancelBooking(ctx context.Context, id int64) (gateway.Booking, error)
}

// BookingWorkflow drives a booking PENDING → CONFIRMED/CANCELLED →
// CHECKED_IN. Two bookings for the same table and slot are independent;
// exclusivity is the gateway's job.
type BookingWorkflow struct {
	gw             BookingGateway
	store          *mirror.Store
	tables         *TableCoordinator
	reconciler     Reconciler
	reconcileDelay time.Duration
	events         EventSink
	locks          keyedMutex
}

// NewBookingWorkflow creates a BookingWorkflow.
func NewBookingWorkflow(gw BookingGateway, store *mirror.Store, tables *TableCoordinator, reconciler Reconciler, reconcileDelay time.Duration, events EventSink) *BookingWorkflow {
	return &BookingWorkflow{
		gw:             gw,
		store:          store,
		tables:         tables,
		reconciler:     reconciler,
		reconcileDelay: reconcileDelay,
		events:         sinkOrNop(events),
	}
}

// Approve confirms a PENDING booking. Its table becomes eligible for
// check-in; the table status itself is picked up by the next refresh.
func (w *BookingWorkflow) Approve(ctx context.Context, sess auth.Session, bookingID int64) (gateway.Booking, error) {
	return w.transition(ctx, sess, bookingID, "approve booking", enum.BookingStatusPending, enum.BookingStatusConfirmed, w.gw.ConfirmBooking)
}

// Reject cancels a PENDING booking.
func (w *BookingWorkflow) Reject(ctx context.Context, sess auth.Session, bookingID int64) (gateway.Booking, error) {
	return w.transition(ctx, sess, bookingID, "reject booking", enum.BookingStatusPending, enum.BookingStatusCancelled, w.gw.CancelBooking)
}

// Cancel withdraws a CONFIRMED booking (no-show) and releases its hold on
// the table.
func (w *BookingWorkflow) Cancel(ctx context.Context, sess auth.Session, bookingID int64) (gateway.Booking, error) {
	return w.transition(ctx, sess, bookingID, "cancel booking", enum.BookingStatusConfirmed, enum.BookingStatusCancelled, w.gw.CancelBooking)
}

// CheckIn seats a CONFIRMED booking at its table.
func (w *BookingWorkflow) CheckIn(ctx context.Context, sess auth.Session, bookingID int64) (CheckInResult, error) {
	sctx, err := begin(ctx, sess)
	if err != nil {
		return CheckInResult{}, err
	}
	booking, err := w.lookup(sctx, bookingID)
	if err != nil {
		return CheckInResult{}, err
	}
	res, err := w.tables.CheckIn(ctx, sess, booking.TableID, bookingID)
	if err != nil && !isPrecondition(err) {
		w.resync(sctx, bookingID)
	}
	return res, err
}

func (w *BookingWorkflow) transition(
	ctx context.Context,
	sess auth.Session,
	bookingID int64,
	op, from, to string,
	call func(context.Context, int64) (gateway.Booking, error),
) (gateway.Booking, error) {
	ctx, err := begin(ctx, sess)
	if err != nil {
		return gateway.Booking{}, err
	}

	unlock := w.locks.lock(bookingID)
	defer unlock()

	booking, err := w.requireStatus(ctx, op, bookingID, from)
	if err != nil {
		return gateway.Booking{}, err
	}

	updated, err := call(ctx, bookingID)
	if err != nil {
		w.resync(ctx, bookingID)
		return gateway.Booking{}, fmt.Errorf("%s %d: %w", op, bookingID, err)
	}
	if updated.ID == 0 {
		updated = booking
	}
	if updated.Status == "" || updated.Status == from {
		updated.Status = to
	}

	w.store.PatchBooking(updated)
	if to == enum.BookingStatusConfirmed {
		w.reconciler.ScheduleRefresh(w.reconcileDelay)
	}
	w.events.Publish(EventBookingUpdated, updated)
	return updated, nil
}

// requireStatus checks the cached booking and, when it disagrees, re-reads
// the gateway before refusing: a stale cache must not block staff.
func (w *BookingWorkflow) requireStatus(ctx context.Context, op string, id int64, want string) (gateway.Booking, error) {
	if b, ok := w.store.Booking(id); ok && b.Status == want {
		return b, nil
	}
	b, err := w.gw.GetBooking(ctx, id)
	if err != nil {
		return gateway.Booking{}, fmt.Errorf("get booking %d: %w", id, err)
	}
	w.store.PutBooking(b)
	if b.Status != want {
		return gateway.Booking{}, precondition(op, "booking %d is %s, want %s", id, b.Status, want)
	}
	return b, nil
}

func (w *BookingWorkflow) lookup(ctx context.Context, id int64) (gateway.Booking, error) {
	if b, ok := w.store.Booking(id); ok {
		return b, nil
	}
	b, err := w.gw.GetBooking(ctx, id)
	if err != nil {
		return gateway.Booking{}, fmt.Errorf("get booking %d: %w", id, err)
	}
	w.store.PutBooking(b)
	return b, nil
}

// resync replaces the cached booking with the gateway's copy after a
// failed mutation.
func (w *BookingWorkflow) resync(ctx context.Context, id int64) {
	b, err := w.gw.GetBooking(ctx, id)
	if err != nil {
		log.Printf("WARN: resync booking %d: %v", id, err)
		return
	}
	w.store.PutBooking(b)
	w.events.Publish(EventBookingUpdated, b)
}
