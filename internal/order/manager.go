package order

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiziaco/intelli-trader/internal/events"
)

// ExecutionMode controls when market orders are filled.
type ExecutionMode string

const (
	// ModeImmediate fills a market order synchronously at creation time
	// against the prevailing price (live trading).
	ModeImmediate ExecutionMode = "immediate"
	// ModeNextBar holds a market order and fills it at the open of the
	// next bar for its ticker (look-ahead-free backtesting).
	ModeNextBar ExecutionMode = "next_bar"
)

// Publisher is the slice of the event bus the manager needs.
type Publisher interface {
	Publish(events.Event)
}

// Approver is one stage of the signal approval chain (compliance,
// position sizing, risk). It may rewrite the signal or reject it.
type Approver interface {
	Approve(sig events.SignalEvent, view PortfolioView) (events.SignalEvent, error)
}

// ViewProvider resolves the read-only portfolio view for a signal.
type ViewProvider func(portfolioID string) PortfolioView

// ValidatorProvider resolves the validator for a portfolio, so each
// portfolio's configured limits apply to its own orders. Returning nil
// falls back to the default limits.
type ValidatorProvider func(portfolioID string) *Validator

// ModifyParams carries the new parameters for Modify.
type ModifyParams struct {
	Quantity float64
	Price    float64
}

// Manager is the order state machine. It creates orders from signals,
// applies fills, evaluates stop/limit triggers on bar events, enforces
// OCO semantics and emits an OrderEvent on every status transition.
type Manager struct {
	storage    Storage
	bus        Publisher
	validators ValidatorProvider
	fallback   *Validator
	approvers  []Approver
	views      ViewProvider
	mode       ExecutionMode

	mu        sync.Mutex
	lastPrice map[string]float64
}

// NewManager wires the order manager. A nil validator provider applies
// the default limits everywhere; a nil view provider disables
// portfolio-level checks.
func NewManager(storage Storage, bus Publisher, validators ValidatorProvider, approvers []Approver, views ViewProvider, mode ExecutionMode) *Manager {
	if mode == "" {
		mode = ModeImmediate
	}
	return &Manager{
		storage:    storage,
		bus:        bus,
		validators: validators,
		fallback:   NewValidator(),
		approvers:  approvers,
		views:      views,
		mode:       mode,
		lastPrice:  make(map[string]float64),
	}
}

func (m *Manager) validatorFor(portfolioID string) *Validator {
	if m.validators != nil {
		if v := m.validators(portfolioID); v != nil {
			return v
		}
	}
	return m.fallback
}

// HandleSignal validates a signal, runs it through the approval chain
// and creates the resulting order. Any failure records a REJECTED order
// with the reason; nothing is silently dropped. When the signal carries
// protective levels, a stop and a take-profit order are created as an
// OCO pair alongside the entry.
func (m *Manager) HandleSignal(sig events.SignalEvent) (*Order, error) {
	var view PortfolioView
	if m.views != nil {
		view = m.views(sig.PortfolioID)
	}

	typ := Type(sig.OrderType)
	if typ == "" {
		typ = TypeMarket
	}

	if res := m.validatorFor(sig.PortfolioID).ValidateSignal(sig, view); !res.OK {
		err := res.Err()
		m.recordRejected(sig, typ, err.Error())
		return nil, err
	}

	approved := sig
	for _, a := range m.approvers {
		var err error
		approved, err = a.Approve(approved, view)
		if err != nil {
			m.recordRejected(sig, typ, err.Error())
			return nil, err
		}
	}

	o := New(approved.PortfolioID, approved.StrategyID, approved.Ticker,
		Side(approved.Side), typ, approved.Quantity, approved.Price, approved.Timestamp)
	if err := m.storage.Add(o); err != nil {
		return nil, err
	}
	m.emit(o, o.Quantity, o.Price, approved.Timestamp)
	log.Printf("order manager: created %s %s order %s %s qty=%.6f", o.Side, o.Type, o.ID, o.Ticker, o.Quantity)

	if typ == TypeMarket && (approved.StopLoss > 0 || approved.TakeProfit > 0) {
		m.createProtectivePair(o, approved)
	}

	if typ == TypeMarket && m.mode == ModeImmediate {
		price := m.prevailingPrice(o.Ticker, approved.Price)
		if err := m.ApplyFill(o.ID, o.RemainingQty(), price, approved.Timestamp); err != nil {
			return o, err
		}
	}
	return o, nil
}

// ApplyFill applies a fill to an order. Overfills are rejected without
// mutation; fills on terminal orders are logged and ignored.
func (m *Manager) ApplyFill(id string, qty, price float64, ts time.Time) error {
	o, err := m.storage.Get(id)
	if err != nil {
		return err
	}
	if err := o.Fill(qty, ts, fillReason(o.Type)); err != nil {
		var invalid *InvalidStateTransitionError
		if errors.As(err, &invalid) {
			log.Printf("order manager: %v (ignored)", err)
		}
		return err
	}
	if err := m.storage.Update(o); err != nil {
		return err
	}
	m.emit(o, qty, price, ts)
	if o.Status == StatusFilled {
		m.cancelOCOSiblings(o, ts)
	}
	return nil
}

// Cancel transitions a PENDING or PARTIALLY_FILLED order to CANCELLED.
// Cancelling a terminal order is a harmless no-op: the attempt lands in
// the audit log but no state changes and no event is emitted.
func (m *Manager) Cancel(id, reason string, ts time.Time) error {
	o, err := m.storage.Get(id)
	if err != nil {
		return err
	}
	if !o.Cancel(reason, ts) {
		return m.storage.Update(o)
	}
	if err := m.storage.Update(o); err != nil {
		return err
	}
	m.emit(o, o.RemainingQty(), o.Price, ts)
	log.Printf("order manager: cancelled order %s (%s)", o.ID, reason)
	return nil
}

// Modify changes quantity/price of a PENDING order after re-validation.
func (m *Manager) Modify(id string, params ModifyParams, ts time.Time) error {
	o, err := m.storage.Get(id)
	if err != nil {
		return err
	}
	if o.Status != StatusPending {
		return ErrNotPending
	}
	var view PortfolioView
	if m.views != nil {
		view = m.views(o.PortfolioID)
	}
	if res := m.validatorFor(o.PortfolioID).ValidateModify(o, params.Quantity, params.Price, view); !res.OK {
		return res.Err()
	}
	o.Quantity = params.Quantity
	o.Price = params.Price
	o.Log = append(o.Log, StateChange{At: ts, From: o.Status, To: o.Status, Reason: "modified"})
	o.UpdatedAt = ts
	return m.storage.Update(o)
}

// HandleBar runs the market-driven order pipeline for one bar: queued
// market orders fill at the open (next_bar mode), stop orders trigger on
// adverse crossings of the close, limit orders on favorable ones.
func (m *Manager) HandleBar(bar events.BarEvent) {
	m.mu.Lock()
	m.lastPrice[bar.Ticker] = bar.Close
	m.mu.Unlock()

	for _, o := range m.storage.ActiveByTicker(bar.Ticker) {
		switch {
		case o.Type == TypeMarket && m.mode == ModeNextBar:
			m.fillTriggered(o, bar.Open, bar.Timestamp)
		case o.Type == TypeStop && shouldTriggerStop(o, bar.Close):
			m.fillTriggered(o, bar.Close, bar.Timestamp)
		case o.Type == TypeLimit && shouldTriggerLimit(o, bar.Close):
			m.fillTriggered(o, bar.Close, bar.Timestamp)
		}
	}
}

// CancelPortfolio clears a portfolio's orders from the active index and
// cancels each of them; their history remains queryable.
func (m *Manager) CancelPortfolio(portfolioID, reason string, ts time.Time) int {
	active := m.storage.Active(portfolioID)
	for _, o := range active {
		if err := m.Cancel(o.ID, reason, ts); err != nil {
			log.Printf("order manager: cancel %s during portfolio clear: %v", o.ID, err)
		}
	}
	m.storage.ClearPortfolio(portfolioID)
	return len(active)
}

// Storage exposes the underlying order store for queries.
func (m *Manager) Storage() Storage { return m.storage }

func (m *Manager) fillTriggered(o *Order, price float64, ts time.Time) {
	if err := m.ApplyFill(o.ID, o.RemainingQty(), price, ts); err != nil {
		log.Printf("order manager: trigger fill for %s: %v", o.ID, err)
		return
	}
	log.Printf("order manager: %s order %s filled: %s %s %.6f @ %.4f",
		o.Type, o.ID, o.Ticker, o.Side, o.FilledQty, price)
}

// cancelOCOSiblings enforces one-cancels-other: the moment one member of
// an OCO group fills, every other non-terminal member is cancelled with
// reason "OCO". The sibling's full record stays in storage.
func (m *Manager) cancelOCOSiblings(filled *Order, ts time.Time) {
	if filled.OCOGroupID == "" {
		return
	}
	for _, o := range m.storage.Active(filled.PortfolioID) {
		if o.ID == filled.ID || o.OCOGroupID != filled.OCOGroupID {
			continue
		}
		if err := m.Cancel(o.ID, "OCO", ts); err != nil {
			log.Printf("order manager: OCO cancel of %s: %v", o.ID, err)
		}
	}
}

// createProtectivePair stores a stop-loss and/or take-profit order for a
// freshly created entry, linked by a shared OCO group id. The exit side
// is the opposite of the entry.
func (m *Manager) createProtectivePair(entry *Order, sig events.SignalEvent) {
	group := uuid.NewString()
	exit := entry.Side.Opposite()
	add := func(typ Type, price float64) {
		p := New(entry.PortfolioID, entry.StrategyID, entry.Ticker, exit, typ, entry.Quantity, price, sig.Timestamp)
		p.OCOGroupID = group
		if err := m.storage.Add(p); err != nil {
			log.Printf("order manager: store protective %s order: %v", typ, err)
			return
		}
		m.emit(p, p.Quantity, p.Price, sig.Timestamp)
		log.Printf("order manager: protective %s order added: %s @ %.4f", typ, p.Ticker, price)
	}
	if sig.StopLoss > 0 {
		add(TypeStop, sig.StopLoss)
	}
	if sig.TakeProfit > 0 {
		add(TypeLimit, sig.TakeProfit)
	}
}

func (m *Manager) recordRejected(sig events.SignalEvent, typ Type, reason string) {
	o := New(sig.PortfolioID, sig.StrategyID, sig.Ticker, Side(sig.Side), typ, sig.Quantity, sig.Price, sig.Timestamp)
	o.Reject(reason, sig.Timestamp)
	if err := m.storage.Add(o); err != nil {
		log.Printf("order manager: store rejected order: %v", err)
		return
	}
	m.emit(o, o.Quantity, o.Price, sig.Timestamp)
	log.Printf("order manager: rejected signal %s %s: %s", sig.Ticker, sig.Side, reason)
}

func (m *Manager) prevailingPrice(ticker string, fallback float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.lastPrice[ticker]; ok && p > 0 {
		return p
	}
	return fallback
}

func (m *Manager) emit(o *Order, qty, price float64, ts time.Time) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.OrderEvent{
		OrderID:     o.ID,
		PortfolioID: o.PortfolioID,
		Ticker:      o.Ticker,
		Type:        string(o.Type),
		Side:        string(o.Side),
		Quantity:    qty,
		Price:       price,
		Status:      string(o.Status),
		Timestamp:   ts,
	})
}

// shouldTriggerStop fires when price crosses against the holder beyond
// the stop: below the stop for a long's protective SELL, above it for a
// short's protective BUY.
func shouldTriggerStop(o *Order, close float64) bool {
	if o.Side == SideSell {
		return close < o.Price
	}
	return close > o.Price
}

// shouldTriggerLimit fires on favorable crossings: above the limit for a
// long's take-profit SELL, below it for a short's take-profit BUY.
func shouldTriggerLimit(o *Order, close float64) bool {
	if o.Side == SideSell {
		return close > o.Price
	}
	return close < o.Price
}

func fillReason(t Type) string {
	switch t {
	case TypeStop:
		return "stop triggered"
	case TypeLimit:
		return "limit triggered"
	default:
		return "market execution"
	}
}
