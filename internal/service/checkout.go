package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/enum"
	"github.com/tableside/floor/internal/gateway"
	"github.com/tableside/floor/internal/mirror"
)

// CheckoutGateway defines the gateway calls the checkout orchestrator needs.
type CheckoutGateway interface {
	PaymentIntentGateway
	GetOrder(ctx context.Context, id int64) (gateway.Order, error)
	RecordPayment(ctx context.Context, orderID int64, amount decimal.Decimal, method string) (gateway.Payment, error)
	CompleteOrder(ctx context.Context, id int64) (gateway.Order, error)
	CreateRedirectPayment(ctx context.Context, orderID int64, returnURL, cancelURL string) (gateway.RedirectPayment, error)
}

// CheckoutConfig configures settlement.
type CheckoutConfig struct {
	Poller            PollerConfig
	RedirectReturnURL string
	RedirectCancelURL string
}

// Checkout outcomes.
const (
	CheckoutCompleted       = "COMPLETED"
	CheckoutAwaitingPayment = "AWAITING_PAYMENT"
	CheckoutRedirected      = "REDIRECTED"
	CheckoutPaymentFailed   = "PAYMENT_FAILED"
)

// CheckoutResult describes what a checkout call did.
type CheckoutResult struct {
	OrderID int64  `json:"order_id"`
	Method  string `json:"method"`
	Status  string `json:"status"`
	// AlreadySettled is set when the order was COMPLETED before the call.
	AlreadySettled bool             `json:"already_settled,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	Payment        *gateway.Payment `json:"payment,omitempty"`
	Intent         *PaymentSnapshot `json:"intent,omitempty"`
	RedirectURL    string           `json:"redirect_url,omitempty"`
	Table          *gateway.Table   `json:"table,omitempty"`
}

// Settlement records what happened after an asynchronous payment was
// confirmed.
type Settlement struct {
	Settled bool      `json:"settled"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// PaymentView is an order's asynchronous payment plus its settlement.
type PaymentView struct {
	Payment    PaymentSnapshot `json:"payment"`
	Settlement *Settlement     `json:"settlement,omitempty"`
}

// CheckoutOrchestrator settles an order and releases its table.
type CheckoutOrchestrator struct {
	gw     CheckoutGateway
	store  *mirror.Store
	tables *TableCoordinator
	cfg    CheckoutConfig
	events EventSink
	locks  keyedMutex

	mu          sync.Mutex
	pollers     map[int64]*PaymentPoller
	settlements map[int64]Settlement
}

// NewCheckoutOrchestrator creates a CheckoutOrchestrator.
func NewCheckoutOrchestrator(gw CheckoutGateway, store *mirror.Store, tables *TableCoordinator, cfg CheckoutConfig, events EventSink) *CheckoutOrchestrator {
	return &CheckoutOrchestrator{
		gw:          gw,
		store:       store,
		tables:      tables,
		cfg:         cfg,
		events:      sinkOrNop(events),
		pollers:     make(map[int64]*PaymentPoller),
		settlements: make(map[int64]Settlement),
	}
}

// Checkout settles orderID with method. Checking out an order that is
// already COMPLETED succeeds without touching any payment.
func (o *CheckoutOrchestrator) Checkout(ctx context.Context, sess auth.Session, orderID int64, method string) (CheckoutResult, error) {
	const op = "checkout"
	ctx, err := begin(ctx, sess)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !enum.IsPaymentMethod(method) {
		return CheckoutResult{}, &PreconditionError{Op: op, Reason: fmt.Sprintf("unknown payment method %q", method), Cause: ErrInvalidMethod}
	}

	unlock := o.locks.lock(orderID)
	defer unlock()

	order, err := o.gw.GetOrder(ctx, orderID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	o.store.PutOrder(order)

	res := CheckoutResult{OrderID: orderID, Method: method, Amount: order.Amount()}
	switch order.Status {
	case enum.OrderStatusCompleted:
		res.Status = CheckoutCompleted
		res.AlreadySettled = true
		if s, ok := o.settlement(orderID); ok && !s.Settled {
			// Paid and completed earlier, but the table was never freed.
			table, err := o.settleLocked(ctx, sess, order)
			res.Table = table
			return res, err
		}
		return res, nil
	case enum.OrderStatusCancelled:
		return CheckoutResult{}, precondition(op, "order %d is CANCELLED", orderID)
	}
	if len(order.Items) == 0 || !res.Amount.IsPositive() {
		return CheckoutResult{}, &PreconditionError{Op: op, Reason: fmt.Sprintf("order %d has nothing to pay", orderID), Cause: ErrEmptyOrder}
	}

	if existing := o.poller(orderID); existing != nil {
		snap := existing.Snapshot()
		switch snap.State {
		case PaymentPending:
			if method != enum.PaymentMethodAsyncTransfer {
				return CheckoutResult{}, precondition(op, "order %d has a pending transfer %s; cancel it first", orderID, snap.TransactionID)
			}
			res.Status = CheckoutAwaitingPayment
			res.Intent = &snap
			return res, nil
		case PaymentCompleted:
			// The transfer is confirmed but the gateway order is still open,
			// so an earlier settlement failed or has not run yet.
			res.Intent = &snap
			table, err := o.settleLocked(ctx, sess, order)
			if err != nil {
				return res, err
			}
			res.Status = CheckoutCompleted
			res.Table = table
			return res, nil
		}
	}

	if s, ok := o.settlement(orderID); ok && !s.Settled {
		// Paid earlier but left open; finish instead of charging again.
		table, err := o.settleLocked(ctx, sess, order)
		if err != nil {
			return res, err
		}
		res.Status = CheckoutCompleted
		res.Table = table
		return res, nil
	}

	switch method {
	case enum.PaymentMethodCash:
		return o.settleCash(ctx, sess, order, res)
	case enum.PaymentMethodAsyncTransfer:
		return o.startTransfer(ctx, sess, order, res)
	default:
		return o.redirect(ctx, order, res)
	}
}

func (o *CheckoutOrchestrator) settleCash(ctx context.Context, sess auth.Session, order gateway.Order, res CheckoutResult) (CheckoutResult, error) {
	payment, err := o.gw.RecordPayment(ctx, order.ID, res.Amount, enum.PaymentMethodCash)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("record cash payment for order %d: %w", order.ID, err)
	}
	res.Payment = &payment

	// Recording a payment leaves the order open at the gateway.
	completed, err := o.completeOrder(ctx, order)
	if err != nil {
		log.Printf("ERROR: order %d paid in cash but not completed: %v", order.ID, err)
		pf := &PartialFailureError{
			Op:         "checkout",
			Completed:  []string{"record payment"},
			FailedStep: "complete order",
			OrderID:    order.ID,
			Err:        err,
		}
		o.recordSettlement(order.ID, pf)
		return res, pf
	}

	table, err := o.release(ctx, sess, completed)
	if err != nil {
		log.Printf("ERROR: order %d paid in cash but table %d not released: %v", order.ID, order.TableID, err)
		pf := &PartialFailureError{
			Op:         "checkout",
			Completed:  []string{"record payment", "complete order"},
			FailedStep: "check out table",
			OrderID:    order.ID,
			Err:        err,
		}
		o.recordSettlement(order.ID, pf)
		return res, pf
	}
	res.Status = CheckoutCompleted
	res.Table = table
	return res, nil
}

// completeOrder marks order COMPLETED at the gateway and in the mirror.
func (o *CheckoutOrchestrator) completeOrder(ctx context.Context, order gateway.Order) (gateway.Order, error) {
	completed, err := o.gw.CompleteOrder(ctx, order.ID)
	if err != nil {
		return gateway.Order{}, fmt.Errorf("complete order %d: %w", order.ID, err)
	}
	if completed.ID == 0 {
		completed = order
	}
	if completed.TableID == 0 {
		completed.TableID = order.TableID
	}
	completed.Status = enum.OrderStatusCompleted
	o.store.PatchOrder(completed)
	o.events.Publish(EventOrderUpdated, completed)
	return completed, nil
}

func (o *CheckoutOrchestrator) startTransfer(ctx context.Context, sess auth.Session, order gateway.Order, res CheckoutResult) (CheckoutResult, error) {
	p := NewPaymentPoller(o.gw, order.ID, res.Amount, o.cfg.Poller)
	bg := context.WithoutCancel(ctx)
	p.OnChange(func(snap PaymentSnapshot) {
		o.events.Publish(EventPaymentUpdated, snap)
		if snap.State == PaymentCompleted {
			o.settleTransfer(bg, sess, order)
		}
	})

	o.mu.Lock()
	old := o.pollers[order.ID]
	o.pollers[order.ID] = p
	delete(o.settlements, order.ID)
	o.mu.Unlock()
	if old != nil {
		old.Close()
	}

	err := p.Initiate(ctx)
	snap := p.Snapshot()
	res.Intent = &snap
	if err != nil {
		res.Status = CheckoutPaymentFailed
		return res, err
	}
	res.Status = CheckoutAwaitingPayment
	return res, nil
}

// settleTransfer runs once an asynchronous payment is confirmed: complete
// the order at the gateway, then free the table.
func (o *CheckoutOrchestrator) settleTransfer(ctx context.Context, sess auth.Session, order gateway.Order) {
	unlock := o.locks.lock(order.ID)
	defer unlock()

	if _, ok := o.settlement(order.ID); ok {
		// A checkout call already settled it, or will retry what failed.
		return
	}
	if _, err := o.settleLocked(ctx, sess, order); err != nil {
		return
	}
	log.Printf("order %d settled by transfer", order.ID)
}

// settleLocked completes a transfer-paid order and frees its table,
// recording the outcome for Payment. The order lock must be held.
func (o *CheckoutOrchestrator) settleLocked(ctx context.Context, sess auth.Session, order gateway.Order) (*gateway.Table, error) {
	done := []string{"confirm payment"}
	if order.Status != enum.OrderStatusCompleted {
		completed, err := o.completeOrder(ctx, order)
		if err != nil {
			log.Printf("ERROR: order %d paid by transfer but not completed: %v", order.ID, err)
			o.recordSettlement(order.ID, err)
			return nil, err
		}
		order = completed
	}
	done = append(done, "complete order")

	table, err := o.release(ctx, sess, order)
	if err != nil {
		log.Printf("ERROR: order %d completed but table %d not released: %v", order.ID, order.TableID, err)
		pf := &PartialFailureError{
			Op:         "settle transfer",
			Completed:  done,
			FailedStep: "check out table",
			OrderID:    order.ID,
			Err:        err,
		}
		o.recordSettlement(order.ID, pf)
		return nil, pf
	}
	o.recordSettlement(order.ID, nil)
	return table, nil
}

func (o *CheckoutOrchestrator) redirect(ctx context.Context, order gateway.Order, res CheckoutResult) (CheckoutResult, error) {
	rp, err := o.gw.CreateRedirectPayment(ctx, order.ID, o.cfg.RedirectReturnURL, o.cfg.RedirectCancelURL)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create redirect payment for order %d: %w", order.ID, err)
	}
	if rp.PaymentURL == "" {
		return CheckoutResult{}, fmt.Errorf("create redirect payment for order %d: %w: no payment url", order.ID, gateway.ErrBadResponse)
	}
	res.Status = CheckoutRedirected
	res.RedirectURL = rp.PaymentURL
	return res, nil
}

// release checks out the order's table. A table that is no longer
// OCCUPIED was already released by someone else and is not an error.
func (o *CheckoutOrchestrator) release(ctx context.Context, sess auth.Session, order gateway.Order) (*gateway.Table, error) {
	if order.TableID == 0 {
		return nil, nil
	}
	table, err := o.tables.CheckOut(ctx, sess, order.TableID)
	if err != nil {
		if isPrecondition(err) {
			log.Printf("WARN: order %d: table %d not released: %v", order.ID, order.TableID, err)
			return nil, nil
		}
		return nil, err
	}
	return &table, nil
}

func (o *CheckoutOrchestrator) recordSettlement(orderID int64, err error) {
	s := Settlement{Settled: err == nil, At: time.Now()}
	if err != nil {
		s.Error = err.Error()
	}
	o.mu.Lock()
	o.settlements[orderID] = s
	o.mu.Unlock()
}

func (o *CheckoutOrchestrator) settlement(orderID int64) (Settlement, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.settlements[orderID]
	return s, ok
}

func (o *CheckoutOrchestrator) poller(orderID int64) *PaymentPoller {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pollers[orderID]
}

// Payment returns the order's asynchronous payment, if one was started.
func (o *CheckoutOrchestrator) Payment(orderID int64) (PaymentView, bool) {
	o.mu.Lock()
	p, ok := o.pollers[orderID]
	s, settled := o.settlements[orderID]
	o.mu.Unlock()
	if !ok {
		return PaymentView{}, false
	}
	view := PaymentView{Payment: p.Snapshot()}
	if settled {
		view.Settlement = &s
	}
	return view, true
}

// CancelPayment abandons the order's pending transfer.
func (o *CheckoutOrchestrator) CancelPayment(ctx context.Context, sess auth.Session, orderID int64) (PaymentSnapshot, error) {
	ctx, err := begin(ctx, sess)
	if err != nil {
		return PaymentSnapshot{}, err
	}
	p := o.poller(orderID)
	if p == nil {
		return PaymentSnapshot{}, precondition("cancel payment", "order %d has no transfer in progress", orderID)
	}
	err = p.Cancel(ctx)
	return p.Snapshot(), err
}

// RetryPayment opens a fresh intent after the order's transfer failed.
func (o *CheckoutOrchestrator) RetryPayment(ctx context.Context, sess auth.Session, orderID int64) (PaymentSnapshot, error) {
	ctx, err := begin(ctx, sess)
	if err != nil {
		return PaymentSnapshot{}, err
	}
	p := o.poller(orderID)
	if p == nil {
		return PaymentSnapshot{}, precondition("retry payment", "order %d has no transfer to retry", orderID)
	}
	err = p.Retry(ctx)
	return p.Snapshot(), err
}

// Close stops every poller.
func (o *CheckoutOrchestrator) Close() {
	o.mu.Lock()
	pollers := make([]*PaymentPoller, 0, len(o.pollers))
	for _, p := range o.pollers {
		pollers = append(pollers, p)
	}
	o.mu.Unlock()
	for _, p := range pollers {
		p.Close()
	}
}
