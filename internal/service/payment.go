package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tableside/floor/internal/enum"
	"github.com/tableside/floor/internal/gateway"
)

// PaymentIntentGateway defines the gateway calls the poller needs.
type PaymentIntentGateway interface {
	CreatePaymentIntent(ctx context.Context, orderID int64, amount decimal.Decimal, description string) (gateway.PaymentIntent, error)
	GetPaymentIntentStatus(ctx context.Context, transactionID string) (string, error)
	CancelPaymentIntent(ctx context.Context, transactionID string) error
}

// PollerState is the local protocol state of an asynchronous payment.
type PollerState string

const (
	PaymentIdle      PollerState = "IDLE"
	PaymentPending   PollerState = "PENDING"
	PaymentCompleted PollerState = "COMPLETED"
	PaymentFailed    PollerState = "FAILED"
	PaymentCancelled PollerState = "CANCELLED"
)

// Terminal reports whether no further transition can happen without retry.
func (s PollerState) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// Failure reasons recorded on a FAILED snapshot.
const (
	FailureTimeout       = "timeout"
	FailureRejected      = "rejected"
	FailureCreateFailed  = "create_failed"
	defaultPollInterval  = 3 * time.Second
	defaultTickInterval  = time.Second
	defaultExpirySeconds = 300
)

// Errors returned by the poller.
var (
	ErrCancelUnconfirmed = errors.New("payment cancelled locally; gateway did not confirm")
	ErrPollerClosed      = errors.New("payment poller closed")
)

// PollerConfig tunes the poller's timers.
type PollerConfig struct {
	PollInterval         time.Duration
	TickInterval         time.Duration
	DefaultExpirySeconds int
	RequestTimeout       time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.DefaultExpirySeconds <= 0 {
		c.DefaultExpirySeconds = defaultExpirySeconds
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// PaymentSnapshot is a point-in-time view of a poller.
type PaymentSnapshot struct {
	OrderID          int64           `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	State            PollerState     `json:"state"`
	Attempt          int             `json:"attempt"`
	TransactionID    string          `json:"transaction_id,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	QRURL            string          `json:"qr_url,omitempty"`
	BankCode         string          `json:"bank_code,omitempty"`
	AccountNumber    string          `json:"account_number,omitempty"`
	AccountName      string          `json:"account_name,omitempty"`
	RemainingSeconds int             `json:"remaining_seconds"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	LastError        string          `json:"last_error,omitempty"`
}

// PaymentOrderID routes the snapshot to the order's realtime room.
func (s PaymentSnapshot) PaymentOrderID() int64 { return s.OrderID }

// PaymentPoller drives one order's asynchronous transfer through
// IDLE → PENDING → COMPLETED | FAILED | CANCELLED. It owns the poll timer
// and the countdown timer together; stopLocked clears both.
//
// Order and amount are fixed at construction and never change, across
// retries included.
type PaymentPoller struct {
	gw          PaymentIntentGateway
	cfg         PollerConfig
	orderID     int64
	amount      decimal.Decimal
	description string

	mu        sync.Mutex
	state     PollerState
	intent    gateway.PaymentIntent
	remaining int
	failure   string
	lastErr   string
	// attempt identifies the current intent; responses for older attempts
	// are dropped.
	attempt   int
	busy      bool
	polling   bool
	closed    bool
	stop      context.CancelFunc
	done      chan struct{}
	listeners []func(PaymentSnapshot)
}

// NewPaymentPoller creates an IDLE poller for orderID and amount.
func NewPaymentPoller(gw PaymentIntentGateway, orderID int64, amount decimal.Decimal, cfg PollerConfig) *PaymentPoller {
	return &PaymentPoller{
		gw:          gw,
		cfg:         cfg.withDefaults(),
		orderID:     orderID,
		amount:      amount,
		description: fmt.Sprintf("Payment for order #%d", orderID),
		state:       PaymentIdle,
	}
}

// OnChange registers fn to receive every state transition. Listeners run
// outside the poller's lock, on the goroutine that caused the transition.
func (p *PaymentPoller) OnChange(fn func(PaymentSnapshot)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Snapshot returns the current view.
func (p *PaymentPoller) Snapshot() PaymentSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Initiate creates the payment intent and starts both timers. A gateway
// failure moves the poller to FAILED without starting any timer.
func (p *PaymentPoller) Initiate(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPollerClosed
	}
	if p.state != PaymentIdle || p.busy {
		state := p.state
		p.mu.Unlock()
		return precondition("initiate payment", "payment for order %d is %s, want IDLE", p.orderID, state)
	}
	p.busy = true
	p.mu.Unlock()

	return p.start(ctx, "initiate payment")
}

// Retry creates a fresh intent after a failure. The expired intent is
// never reused.
func (p *PaymentPoller) Retry(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPollerClosed
	}
	if p.state != PaymentFailed || p.busy {
		state := p.state
		p.mu.Unlock()
		return precondition("retry payment", "payment for order %d is %s, want FAILED", p.orderID, state)
	}
	p.busy = true
	p.mu.Unlock()

	return p.start(ctx, "retry payment")
}

func (p *PaymentPoller) start(ctx context.Context, op string) error {
	pi, err := p.gw.CreatePaymentIntent(ctx, p.orderID, p.amount, p.description)

	p.mu.Lock()
	p.busy = false
	if err != nil {
		p.state = PaymentFailed
		p.failure = FailureCreateFailed
		p.lastErr = err.Error()
		snap := p.snapshotLocked()
		p.mu.Unlock()
		p.notify(snap)
		return fmt.Errorf("%s for order %d: %w", op, p.orderID, err)
	}
	if p.closed {
		p.mu.Unlock()
		log.Printf("WARN: poller for order %d closed while creating intent %s", p.orderID, pi.TransactionID)
		return ErrPollerClosed
	}

	p.attempt++
	p.intent = pi
	p.remaining = pi.ExpirySeconds
	if p.remaining <= 0 {
		p.remaining = p.cfg.DefaultExpirySeconds
	}
	p.state = PaymentPending
	p.failure = ""
	p.lastErr = ""
	p.polling = false

	// Timers outlive the request that started them but keep its values
	// (the session token).
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.stop = cancel
	p.done = done
	attempt := p.attempt
	snap := p.snapshotLocked()
	p.mu.Unlock()

	go p.run(runCtx, attempt, pi.TransactionID, done)
	p.notify(snap)
	return nil
}

// run owns both tickers for one attempt.
func (p *PaymentPoller) run(ctx context.Context, attempt int, txID string, done chan struct{}) {
	defer close(done)

	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()
	tick := time.NewTicker(p.cfg.TickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if p.countdown(attempt) {
				return
			}
		case <-poll.C:
			p.launchPoll(ctx, attempt, txID)
		}
	}
}

// countdown decrements the remaining window and reports whether the
// attempt is over.
func (p *PaymentPoller) countdown(attempt int) bool {
	p.mu.Lock()
	if p.attempt != attempt || p.state != PaymentPending {
		p.mu.Unlock()
		return true
	}
	p.remaining--
	if p.remaining > 0 {
		p.mu.Unlock()
		return false
	}
	p.remaining = 0
	p.finishLocked(PaymentFailed, FailureTimeout)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	log.Printf("WARN: payment for order %d timed out (intent %s)", p.orderID, snap.TransactionID)
	p.notify(snap)
	return true
}

// launchPoll starts one status request unless one is already in flight.
// The request is not tied to the timers' context: stopping the poller
// does not abort it, its answer is just discarded.
func (p *PaymentPoller) launchPoll(ctx context.Context, attempt int, txID string) {
	p.mu.Lock()
	if p.attempt != attempt || p.state != PaymentPending || p.polling {
		p.mu.Unlock()
		return
	}
	p.polling = true
	p.mu.Unlock()

	go func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.RequestTimeout)
		defer cancel()
		status, err := p.gw.GetPaymentIntentStatus(rctx, txID)
		p.applyPoll(attempt, txID, status, err)
	}()
}

func (p *PaymentPoller) applyPoll(attempt int, txID, status string, err error) {
	p.mu.Lock()
	if p.attempt == attempt {
		p.polling = false
	}
	if p.attempt != attempt || p.state != PaymentPending {
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.lastErr = err.Error()
		p.mu.Unlock()
		log.Printf("WARN: poll payment intent %s: %v", txID, err)
		return
	}

	switch status {
	case enum.PaymentStatusCompleted:
		p.finishLocked(PaymentCompleted, "")
	case enum.PaymentStatusFailed:
		p.finishLocked(PaymentFailed, FailureRejected)
	case enum.PaymentStatusCancelled:
		p.finishLocked(PaymentCancelled, "")
	default:
		p.mu.Unlock()
		return
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// Cancel abandons a PENDING payment. The local state becomes CANCELLED
// whatever the gateway answers; a failed cancel request is returned
// wrapped in ErrCancelUnconfirmed.
func (p *PaymentPoller) Cancel(ctx context.Context) error {
	p.mu.Lock()
	if p.state != PaymentPending {
		state := p.state
		p.mu.Unlock()
		return precondition("cancel payment", "payment for order %d is %s, want PENDING", p.orderID, state)
	}
	txID := p.intent.TransactionID
	p.finishLocked(PaymentCancelled, "")
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)

	if err := p.gw.CancelPaymentIntent(ctx, txID); err != nil {
		log.Printf("ERROR: cancel payment intent %s for order %d not confirmed by gateway: %v", txID, p.orderID, err)
		p.mu.Lock()
		p.lastErr = err.Error()
		snap = p.snapshotLocked()
		p.mu.Unlock()
		// Screens learn the gateway may still settle the cancelled intent.
		p.notify(snap)
		return fmt.Errorf("%w: intent %s: %w", ErrCancelUnconfirmed, txID, err)
	}
	log.Printf("payment intent %s for order %d cancelled", txID, p.orderID)
	return nil
}

// Close stops both timers without changing state and waits for the timer
// goroutine to exit.
func (p *PaymentPoller) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *PaymentPoller) finishLocked(state PollerState, reason string) {
	p.state = state
	p.failure = reason
	p.stopLocked()
}

func (p *PaymentPoller) stopLocked() {
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
}

func (p *PaymentPoller) snapshotLocked() PaymentSnapshot {
	return PaymentSnapshot{
		OrderID:          p.orderID,
		Amount:           p.amount,
		State:            p.state,
		Attempt:          p.attempt,
		TransactionID:    p.intent.TransactionID,
		PaymentReference: p.intent.Content,
		QRURL:            p.intent.PaymentURL,
		BankCode:         p.intent.BankCode,
		AccountNumber:    p.intent.AccountNumber,
		AccountName:      p.intent.AccountName,
		RemainingSeconds: p.remaining,
		FailureReason:    p.failure,
		LastError:        p.lastErr,
	}
}

func (p *PaymentPoller) notify(snap PaymentSnapshot) {
	p.mu.Lock()
	listeners := append([]func(PaymentSnapshot){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
