package portfolio

import (
	"math"
	"time"
)

// Position is one open holding with a signed quantity: positive for a
// long, negative for a short. The weighted-average entry price excludes
// commission; commission lands in cash and in realized PnL on reduction.
type Position struct {
	Ticker       string
	Quantity     float64 // signed
	AvgPrice     float64
	CurrentPrice float64
	RealizedPnL  float64
	OpenedAt     time.Time
	UpdatedAt    time.Time
	ClosedAt     time.Time // zero while open
}

// MarketValue is the signed value of the holding at the current price.
// A short carries a negative value, the liability to buy back.
func (p *Position) MarketValue() float64 {
	return p.CurrentPrice * p.Quantity
}

// UnrealizedPnL is the profit at the current price relative to the
// average entry. The signed quantity makes the same formula correct for
// both directions.
func (p *Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.AvgPrice) * p.Quantity
}

// Long reports whether the position is held long.
func (p *Position) Long() bool { return p.Quantity > 0 }

// PositionManager keeps the open positions of one portfolio plus the
// history of closed ones. Like CashManager it is lock-free internally;
// the owning Portfolio serializes access.
type PositionManager struct {
	open   map[string]*Position
	closed []*Position
}

// NewPositionManager returns an empty position book.
func NewPositionManager() *PositionManager {
	return &PositionManager{open: make(map[string]*Position)}
}

// Get returns the open position for a ticker, nil if none.
func (m *PositionManager) Get(ticker string) *Position {
	return m.open[ticker]
}

// Open returns all open positions.
func (m *PositionManager) Open() []*Position {
	out := make([]*Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p)
	}
	return out
}

// Closed returns the closed-position history in close order.
func (m *PositionManager) Closed() []*Position {
	return m.closed
}

// OpenCount returns the number of open positions.
func (m *PositionManager) OpenCount() int { return len(m.open) }

// ValidateDelta checks whether a signed quantity delta can be applied
// to a ticker without mutating anything. Opening and increasing are
// always valid; a reduction must not exceed the open quantity.
func (m *PositionManager) ValidateDelta(ticker string, delta float64) error {
	p, ok := m.open[ticker]
	if !ok || sameSign(p.Quantity, delta) {
		return nil
	}
	if math.Abs(delta) > math.Abs(p.Quantity) {
		return &InvalidReductionError{Ticker: ticker, Requested: math.Abs(delta), Open: math.Abs(p.Quantity)}
	}
	return nil
}

// ApplyDelta applies a signed quantity delta at a price, returning the
// realized PnL of any reduction (commission already deducted). A
// position reaching exactly zero quantity closes and moves to history;
// a later delta on the same ticker opens a fresh position.
func (m *PositionManager) ApplyDelta(ticker string, delta, price, commission float64, ts time.Time) (float64, error) {
	if err := m.ValidateDelta(ticker, delta); err != nil {
		return 0, err
	}

	p, ok := m.open[ticker]
	if !ok {
		// Entry commission hits cash only; the average price stays a
		// pure price so reduction PnL composes cleanly.
		m.open[ticker] = &Position{
			Ticker:       ticker,
			Quantity:     delta,
			AvgPrice:     price,
			CurrentPrice: price,
			OpenedAt:     ts,
			UpdatedAt:    ts,
		}
		return 0, nil
	}

	if sameSign(p.Quantity, delta) {
		// Increase: re-weight the average entry by absolute size.
		oldAbs := math.Abs(p.Quantity)
		addAbs := math.Abs(delta)
		p.AvgPrice = (p.AvgPrice*oldAbs + price*addAbs) / (oldAbs + addAbs)
		p.Quantity += delta
		p.CurrentPrice = price
		p.UpdatedAt = ts
		return 0, nil
	}

	// Reduction: realize PnL on the closed slice. For a long the closed
	// slice is -delta (delta is negative); the signed arithmetic gives
	// the mirrored result for shorts.
	closedQty := -delta
	realized := (price-p.AvgPrice)*closedQty - commission
	p.Quantity += delta
	p.CurrentPrice = price
	p.RealizedPnL += realized
	p.UpdatedAt = ts

	if p.Quantity == 0 {
		p.ClosedAt = ts
		m.closed = append(m.closed, p)
		delete(m.open, ticker)
	}
	return realized, nil
}

// MarkPrice revalues a ticker's open position at a new price.
func (m *PositionManager) MarkPrice(ticker string, price float64, ts time.Time) {
	if p, ok := m.open[ticker]; ok {
		p.CurrentPrice = price
		p.UpdatedAt = ts
	}
}

// TotalValue sums the signed market values of all open positions.
func (m *PositionManager) TotalValue() float64 {
	var total float64
	for _, p := range m.open {
		total += p.MarketValue()
	}
	return total
}

// TotalUnrealized sums unrealized PnL across open positions.
func (m *PositionManager) TotalUnrealized() float64 {
	var total float64
	for _, p := range m.open {
		total += p.UnrealizedPnL()
	}
	return total
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
