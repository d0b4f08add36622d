package portfolio

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the immutable record of one executed trade. Once
// appended to the log it is never modified.
type Transaction struct {
	ID          string
	PortfolioID string
	OrderID     string
	Ticker      string
	Side        string // BUY or SELL
	Price       float64
	Quantity    float64 // always positive; Side carries the direction
	Commission  float64
	RealizedPnL float64 // non-zero only when the trade reduced a position
	Timestamp   time.Time
}

// TransactionManager is the atomic write boundary of the ledger: it
// validates a trade against both cash and positions with no mutation,
// then applies the cash delta and the position delta as a unit and
// appends the record. It is the sole writer of cash and position state.
type TransactionManager struct {
	portfolioID string
	cash        *CashManager
	positions   *PositionManager

	log      []Transaction
	realized []float64 // realized PnL of each reducing trade, in order
}

// NewTransactionManager binds the manager to a portfolio's books.
func NewTransactionManager(portfolioID string, cash *CashManager, positions *PositionManager) *TransactionManager {
	return &TransactionManager{portfolioID: portfolioID, cash: cash, positions: positions}
}

// Process executes one trade atomically. Either both the cash balance
// and the position book change and a transaction is appended, or an
// error is returned and nothing changed.
func (m *TransactionManager) Process(side, ticker string, price, qty, commission, reserved float64, orderID string, ts time.Time) (*Transaction, error) {
	qtyDelta := qty
	cashDelta := -price*qty - commission
	if side == "SELL" {
		qtyDelta = -qty
		cashDelta = price*qty - commission
	}

	// Validation phase: no state may change past this block on error.
	if err := m.positions.ValidateDelta(ticker, qtyDelta); err != nil {
		return nil, err
	}
	if reserved > 0 {
		m.cash.Release(reserved)
	}
	if err := m.cash.CanApply(cashDelta); err != nil {
		if reserved > 0 {
			_ = m.cash.Reserve(reserved) // restore the earmark
		}
		return nil, err
	}

	prev := m.positions.Get(ticker)
	reducing := prev != nil && !sameSign(prev.Quantity, qtyDelta)

	realized, err := m.positions.ApplyDelta(ticker, qtyDelta, price, commission, ts)
	if err != nil {
		return nil, err
	}
	if err := m.cash.Apply(cashDelta); err != nil {
		// CanApply passed above; reaching here means the books diverged.
		return nil, err
	}

	tx := Transaction{
		ID:          uuid.NewString(),
		PortfolioID: m.portfolioID,
		OrderID:     orderID,
		Ticker:      ticker,
		Side:        side,
		Price:       price,
		Quantity:    qty,
		Commission:  commission,
		RealizedPnL: realized,
		Timestamp:   ts,
	}
	m.log = append(m.log, tx)
	if reducing {
		m.realized = append(m.realized, realized)
	}
	return &tx, nil
}

// Log returns the full transaction log in execution order.
func (m *TransactionManager) Log() []Transaction {
	out := make([]Transaction, len(m.log))
	copy(out, m.log)
	return out
}

// Get returns a transaction by id.
func (m *TransactionManager) Get(id string) (*Transaction, bool) {
	for i := range m.log {
		if m.log[i].ID == id {
			tx := m.log[i]
			return &tx, true
		}
	}
	return nil, false
}

// InRange returns transactions with Timestamp inside [from, to].
func (m *TransactionManager) InRange(from, to time.Time) []Transaction {
	var out []Transaction
	for _, tx := range m.log {
		if !tx.Timestamp.Before(from) && !tx.Timestamp.After(to) {
			out = append(out, tx)
		}
	}
	return out
}

// RealizedResults returns the realized PnL of every reducing trade, the
// series win/loss statistics are computed from.
func (m *TransactionManager) RealizedResults() []float64 {
	out := make([]float64, len(m.realized))
	copy(out, m.realized)
	return out
}

// TotalRealized sums realized PnL across the log.
func (m *TransactionManager) TotalRealized() float64 {
	var total float64
	for _, r := range m.realized {
		total += r
	}
	return total
}
