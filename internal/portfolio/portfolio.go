// Package portfolio implements the accounting ledger: cash, signed
// positions, an immutable transaction log and derived valuation.
package portfolio

import (
	"log"
	"sync"
	"time"

	"github.com/tiziaco/intelli-trader/internal/events"
)

// Snapshot is one point-in-time valuation of a portfolio.
type Snapshot struct {
	Timestamp      time.Time
	TotalEquity    float64
	CashBalance    float64
	PositionsValue float64
	UnrealizedPnL  float64
	RealizedPnL    float64
	OpenPositions  int
}

// Portfolio owns one ledger: a cash book, a position book and the
// transaction manager that is the only writer of both. A single RWMutex
// serializes writers while letting valuation reads run concurrently.
type Portfolio struct {
	ID   string
	Name string

	mu           sync.RWMutex
	cash         *CashManager
	positions    *PositionManager
	transactions *TransactionManager
}

// New creates a portfolio with an opening cash balance.
func New(id, name string, initialCash float64) *Portfolio {
	cash := NewCashManager(initialCash)
	positions := NewPositionManager()
	return &Portfolio{
		ID:           id,
		Name:         name,
		cash:         cash,
		positions:    positions,
		transactions: NewTransactionManager(id, cash, positions),
	}
}

// ProcessFill executes a fill event against the ledger. The whole
// validate-then-apply sequence runs under the write lock, so a fill is
// observed either entirely or not at all.
func (p *Portfolio) ProcessFill(fill events.FillEvent) (*Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, err := p.transactions.Process(fill.Side, fill.Ticker, fill.Price, fill.Quantity,
		fill.Commission, 0, fill.OrderID, fill.Timestamp)
	if err != nil {
		log.Printf("portfolio %s: fill for order %s refused: %v", p.ID, fill.OrderID, err)
		return nil, err
	}
	log.Printf("portfolio %s: %s %.8f %s @ %.4f (commission %.4f)",
		p.ID, tx.Side, tx.Quantity, tx.Ticker, tx.Price, tx.Commission)
	return tx, nil
}

// MarkPrice revalues the ticker's open position at a new market price.
// Equity changes with it; cash and the transaction log do not.
func (p *Portfolio) MarkPrice(ticker string, price float64, ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions.MarkPrice(ticker, price, ts)
}

// Snapshot returns a consistent point-in-time valuation.
func (p *Portfolio) Snapshot(ts time.Time) Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Timestamp:      ts,
		TotalEquity:    p.cash.Balance() + p.positions.TotalValue(),
		CashBalance:    p.cash.Balance(),
		PositionsValue: p.positions.TotalValue(),
		UnrealizedPnL:  p.positions.TotalUnrealized(),
		RealizedPnL:    p.transactions.TotalRealized(),
		OpenPositions:  p.positions.OpenCount(),
	}
}

// Position returns a copy of the open position for a ticker, nil if none.
func (p *Portfolio) Position(ticker string) *Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos := p.positions.Get(ticker)
	if pos == nil {
		return nil
	}
	cp := *pos
	return &cp
}

// OpenPositions returns copies of all open positions.
func (p *Portfolio) OpenPositions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	open := p.positions.Open()
	out := make([]Position, 0, len(open))
	for _, pos := range open {
		out = append(out, *pos)
	}
	return out
}

// ClosedPositions returns copies of the closed-position history.
func (p *Portfolio) ClosedPositions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	closed := p.positions.Closed()
	out := make([]Position, 0, len(closed))
	for _, pos := range closed {
		out = append(out, *pos)
	}
	return out
}

// Transactions exposes the transaction log for queries. Reads on the
// returned slices are safe; the log itself is append-only.
func (p *Portfolio) Transactions() []Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transactions.Log()
}

// TransactionsInRange returns the log entries inside [from, to].
func (p *Portfolio) TransactionsInRange(from, to time.Time) []Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transactions.InRange(from, to)
}

// RealizedResults returns the realized PnL series of reducing trades.
func (p *Portfolio) RealizedResults() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transactions.RealizedResults()
}

// Reserve earmarks cash for a pending order.
func (p *Portfolio) Reserve(amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash.Reserve(amount)
}

// Release frees a cash earmark, e.g. on order cancellation.
func (p *Portfolio) Release(amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash.Release(amount)
}

// AvailableCash implements order.PortfolioView.
func (p *Portfolio) AvailableCash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash.Available()
}

// TotalEquity implements order.PortfolioView.
func (p *Portfolio) TotalEquity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash.Balance() + p.positions.TotalValue()
}

// OpenPositionCount implements order.PortfolioView.
func (p *Portfolio) OpenPositionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions.OpenCount()
}

// Exposure implements order.PortfolioView: the absolute market value
// held in a ticker, zero when flat.
func (p *Portfolio) Exposure(ticker string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos := p.positions.Get(ticker)
	if pos == nil {
		return 0
	}
	mv := pos.MarketValue()
	if mv < 0 {
		return -mv
	}
	return mv
}

// Registry holds the portfolios managed by one engine instance.
type Registry struct {
	mu         sync.RWMutex
	portfolios map[string]*Portfolio
}

// NewRegistry returns an empty portfolio registry.
func NewRegistry() *Registry {
	return &Registry{portfolios: make(map[string]*Portfolio)}
}

// Add registers a portfolio. An existing id is replaced.
func (r *Registry) Add(p *Portfolio) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portfolios[p.ID] = p
}

// Get returns a portfolio by id.
func (r *Registry) Get(id string) (*Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.portfolios[id]
	if !ok {
		return nil, ErrPortfolioNotFound
	}
	return p, nil
}

// All returns every registered portfolio.
func (r *Registry) All() []*Portfolio {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Portfolio, 0, len(r.portfolios))
	for _, p := range r.portfolios {
		out = append(out, p)
	}
	return out
}
