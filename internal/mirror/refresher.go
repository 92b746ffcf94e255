package mirror

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/gateway"
)

// SnapshotSource is the subset of the gateway the refresh loop reads.
type SnapshotSource interface {
	ListTables(ctx context.Context) ([]gateway.Table, error)
	ListBookings(ctx context.Context) ([]gateway.Booking, error)
	ListOrders(ctx context.Context) ([]gateway.Order, error)
}

// Refresher periodically replaces the Store with an authoritative snapshot.
// It also runs one-shot delayed refreshes that workflows request after an
// optimistic patch.
type Refresher struct {
	src      SnapshotSource
	store    *Store
	session  auth.Session
	interval time.Duration
	now      func() time.Time

	trigger chan struct{}

	// refreshMu keeps two snapshots from interleaving their Replace calls.
	refreshMu sync.Mutex

	mu        sync.Mutex
	delayed   *time.Timer
	onRefresh []func(Snapshot)
}

// NewRefresher creates a Refresher. session supplies the gateway token used
// for background reads.
func NewRefresher(src SnapshotSource, store *Store, session auth.Session, interval time.Duration) *Refresher {
	return &Refresher{
		src:      src,
		store:    store,
		session:  session,
		interval: interval,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// OnRefresh registers fn to run after every successful snapshot.
func (r *Refresher) OnRefresh(fn func(Snapshot)) {
	r.mu.Lock()
	r.onRefresh = append(r.onRefresh, fn)
	r.mu.Unlock()
}

// Run refreshes immediately, then on every interval tick and on every
// Trigger, until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		r.mu.Lock()
		if r.delayed != nil {
			r.delayed.Stop()
			r.delayed = nil
		}
		r.mu.Unlock()
	}()

	r.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshLogged(ctx)
		case <-r.trigger:
			r.refreshLogged(ctx)
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if err := r.RefreshNow(ctx); err != nil && ctx.Err() == nil {
		log.Printf("ERROR: refresh floor snapshot: %v", err)
	}
}

// Trigger asks Run for a refresh without blocking. Requests coalesce.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// ScheduleRefresh triggers a refresh after delay. A refresh already
// scheduled is pushed back rather than duplicated.
func (r *Refresher) ScheduleRefresh(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delayed != nil {
		r.delayed.Reset(delay)
		return
	}
	r.delayed = time.AfterFunc(delay, func() {
		r.mu.Lock()
		r.delayed = nil
		r.mu.Unlock()
		r.Trigger()
	})
}

// RefreshNow fetches tables, bookings and orders concurrently and replaces
// the store. On any failure the store is left untouched.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	ctx = auth.WithSession(ctx, r.session)
	g, gctx := errgroup.WithContext(ctx)

	var snap Snapshot
	g.Go(func() error {
		tables, err := r.src.ListTables(gctx)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		snap.Tables = tables
		return nil
	})
	g.Go(func() error {
		bookings, err := r.src.ListBookings(gctx)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		snap.Bookings = bookings
		return nil
	})
	g.Go(func() error {
		orders, err := r.src.ListOrders(gctx)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		snap.Orders = orders
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	r.store.Replace(snap, r.now())

	r.mu.Lock()
	hooks := append([]func(Snapshot){}, r.onRefresh...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(snap)
	}
	return nil
}
