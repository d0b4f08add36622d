package order

import (
	"time"

	"github.com/google/uuid"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the reverse direction, used for protective orders.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type is the order kind.
type Type string

const (
	TypeMarket Type = "MARKET"
	TypeStop   Type = "STOP"
	TypeLimit  Type = "LIMIT"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// Terminal reports whether no further state mutation is permitted.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// StateChange is one entry in an order's append-only audit log.
type StateChange struct {
	At     time.Time
	From   Status
	To     Status
	Reason string
}

// Order is a managed trading order. It is owned by Storage; the manager
// mutates it in place and writes it back through Storage.Update.
type Order struct {
	ID          string
	PortfolioID string
	StrategyID  string
	Ticker      string
	Side        Side
	Type        Type
	Quantity    float64
	FilledQty   float64
	Price       float64 // stop/limit trigger price; reference price for market orders
	OCOGroupID  string  // links a stop and a take-profit protecting one position
	Status      Status
	Log         []StateChange
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New creates a PENDING order with a fresh id and an opening log entry.
func New(portfolioID, strategyID, ticker string, side Side, typ Type, qty, price float64, ts time.Time) *Order {
	o := &Order{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		StrategyID:  strategyID,
		Ticker:      ticker,
		Side:        side,
		Type:        typ,
		Quantity:    qty,
		Price:       price,
		Status:      StatusPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	o.Log = append(o.Log, StateChange{At: ts, From: "", To: StatusPending, Reason: "created"})
	return o
}

// RemainingQty returns the unfilled quantity.
func (o *Order) RemainingQty() float64 {
	return o.Quantity - o.FilledQty
}

// Fill applies a partial or full fill. A non-positive quantity is an
// InvalidQuantityError, a fill larger than the remaining quantity is an
// OverfillError, a fill on a terminal order is an
// InvalidStateTransitionError. None of them mutates the order.
func (o *Order) Fill(qty float64, ts time.Time, reason string) error {
	if o.Status.Terminal() {
		return &InvalidStateTransitionError{OrderID: o.ID, Status: o.Status, Op: "fill"}
	}
	if qty <= 0 {
		return &InvalidQuantityError{OrderID: o.ID, Qty: qty}
	}
	if qty > o.RemainingQty() {
		return &OverfillError{OrderID: o.ID, Requested: qty, Remaining: o.RemainingQty()}
	}
	o.FilledQty += qty
	next := StatusPartiallyFilled
	if o.FilledQty >= o.Quantity {
		next = StatusFilled
	}
	o.transition(next, reason, ts)
	return nil
}

// Cancel moves a non-terminal order to CANCELLED and reports whether the
// status actually changed. Cancelling a terminal order is a no-op that
// still records the attempt in the audit log.
func (o *Order) Cancel(reason string, ts time.Time) bool {
	if o.Status.Terminal() {
		o.Log = append(o.Log, StateChange{At: ts, From: o.Status, To: o.Status, Reason: "cancel ignored: " + reason})
		return false
	}
	o.transition(StatusCancelled, reason, ts)
	return true
}

// Reject marks a freshly created order as REJECTED with a reason.
func (o *Order) Reject(reason string, ts time.Time) {
	if o.Status.Terminal() {
		return
	}
	o.transition(StatusRejected, reason, ts)
}

func (o *Order) transition(to Status, reason string, ts time.Time) {
	o.Log = append(o.Log, StateChange{At: ts, From: o.Status, To: to, Reason: reason})
	o.Status = to
	o.UpdatedAt = ts
}
