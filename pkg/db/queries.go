// Package db provides portfolio-isolated persistence over SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPortfolioIDRequired = errors.New("portfolio_id is required for data isolation")
	ErrNotFound            = errors.New("record not found")
)

// PortfolioQueries provides portfolio-isolated database queries.
type PortfolioQueries struct {
	db *sql.DB
}

// NewPortfolioQueries creates a new PortfolioQueries instance.
func NewPortfolioQueries(db *sql.DB) *PortfolioQueries {
	return &PortfolioQueries{db: db}
}

// ----------------------------------------
// Order Queries
// ----------------------------------------

// UpsertOrder writes an order row, replacing any prior state.
func (q *PortfolioQueries) UpsertOrder(ctx context.Context, o OrderRow) error {
	if o.PortfolioID == "" {
		return ErrPortfolioIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO orders (id, portfolio_id, strategy_id, ticker, side, type, price, qty, filled_qty, oco_group_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			price = excluded.price,
			qty = excluded.qty,
			filled_qty = excluded.filled_qty,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, o.ID, o.PortfolioID, o.StrategyID, o.Ticker, o.Side, o.Type, o.Price, o.Qty, o.FilledQty, o.OCOGroupID, o.Status, o.CreatedAt, o.UpdatedAt)

	return err
}

// GetOrder returns a single order by id.
func (q *PortfolioQueries) GetOrder(ctx context.Context, id string) (*OrderRow, error) {
	var o OrderRow
	err := q.db.QueryRowContext(ctx, `
		SELECT id, portfolio_id, COALESCE(strategy_id, ''), ticker, side, type, price, qty,
		       COALESCE(filled_qty, 0), COALESCE(oco_group_id, ''), status, created_at, updated_at
		FROM orders
		WHERE id = ?
	`, id).Scan(&o.ID, &o.PortfolioID, &o.StrategyID, &o.Ticker, &o.Side, &o.Type, &o.Price, &o.Qty,
		&o.FilledQty, &o.OCOGroupID, &o.Status, &o.CreatedAt, &o.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

// GetOrdersByPortfolio returns orders for a specific portfolio, newest first.
func (q *PortfolioQueries) GetOrdersByPortfolio(ctx context.Context, portfolioID string, limit int) ([]OrderRow, error) {
	if portfolioID == "" {
		return nil, ErrPortfolioIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, portfolio_id, COALESCE(strategy_id, ''), ticker, side, type, price, qty,
		       COALESCE(filled_qty, 0), COALESCE(oco_group_id, ''), status, created_at, updated_at
		FROM orders
		WHERE portfolio_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetActiveOrdersByPortfolio returns non-terminal orders for a portfolio.
func (q *PortfolioQueries) GetActiveOrdersByPortfolio(ctx context.Context, portfolioID string) ([]OrderRow, error) {
	if portfolioID == "" {
		return nil, ErrPortfolioIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, portfolio_id, COALESCE(strategy_id, ''), ticker, side, type, price, qty,
		       COALESCE(filled_qty, 0), COALESCE(oco_group_id, ''), status, created_at, updated_at
		FROM orders
		WHERE portfolio_id = ?
		  AND status IN ('PENDING', 'PARTIALLY_FILLED')
		ORDER BY created_at DESC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("query active orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]OrderRow, error) {
	var orders []OrderRow
	for rows.Next() {
		var o OrderRow
		if err := rows.Scan(&o.ID, &o.PortfolioID, &o.StrategyID, &o.Ticker, &o.Side, &o.Type,
			&o.Price, &o.Qty, &o.FilledQty, &o.OCOGroupID, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// AppendOrderLog writes one audit-log entry for an order.
func (q *PortfolioQueries) AppendOrderLog(ctx context.Context, l OrderLogRow) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO order_log (order_id, at, from_status, to_status, reason)
		VALUES (?, ?, ?, ?, ?)
	`, l.OrderID, l.At, l.FromStatus, l.ToStatus, l.Reason)
	return err
}

// GetOrderLog returns the audit trail of one order in insertion order.
func (q *PortfolioQueries) GetOrderLog(ctx context.Context, orderID string) ([]OrderLogRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, order_id, at, COALESCE(from_status, ''), to_status, COALESCE(reason, '')
		FROM order_log
		WHERE order_id = ?
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order log: %w", err)
	}
	defer rows.Close()

	var entries []OrderLogRow
	for rows.Next() {
		var l OrderLogRow
		if err := rows.Scan(&l.Seq, &l.OrderID, &l.At, &l.FromStatus, &l.ToStatus, &l.Reason); err != nil {
			return nil, fmt.Errorf("scan order log: %w", err)
		}
		entries = append(entries, l)
	}
	return entries, rows.Err()
}

// ----------------------------------------
// Transaction Queries
// ----------------------------------------

// CreateTransaction inserts one executed trade. Transactions are
// immutable; there is no update path.
func (q *PortfolioQueries) CreateTransaction(ctx context.Context, t TransactionRow) error {
	if t.PortfolioID == "" {
		return ErrPortfolioIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (id, portfolio_id, order_id, ticker, side, price, qty, commission, realized_pnl, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.PortfolioID, t.OrderID, t.Ticker, t.Side, t.Price, t.Qty, t.Commission, t.RealizedPnL, t.CreatedAt)

	return err
}

// GetTransactionsByPortfolio returns trades for a portfolio, newest first.
func (q *PortfolioQueries) GetTransactionsByPortfolio(ctx context.Context, portfolioID string, limit int) ([]TransactionRow, error) {
	if portfolioID == "" {
		return nil, ErrPortfolioIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, portfolio_id, COALESCE(order_id, ''), ticker, side, price, qty,
		       COALESCE(commission, 0), COALESCE(realized_pnl, 0), created_at
		FROM transactions
		WHERE portfolio_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetTransactionsInRange returns a portfolio's trades inside [from, to].
func (q *PortfolioQueries) GetTransactionsInRange(ctx context.Context, portfolioID string, from, to time.Time) ([]TransactionRow, error) {
	if portfolioID == "" {
		return nil, ErrPortfolioIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, portfolio_id, COALESCE(order_id, ''), ticker, side, price, qty,
		       COALESCE(commission, 0), COALESCE(realized_pnl, 0), created_at
		FROM transactions
		WHERE portfolio_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at
	`, portfolioID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query transactions in range: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]TransactionRow, error) {
	var trades []TransactionRow
	for rows.Next() {
		var t TransactionRow
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.OrderID, &t.Ticker, &t.Side, &t.Price, &t.Qty,
			&t.Commission, &t.RealizedPnL, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ----------------------------------------
// Snapshot Queries
// ----------------------------------------

// CreateSnapshot appends one equity-curve point for a portfolio.
func (q *PortfolioQueries) CreateSnapshot(ctx context.Context, s SnapshotRow) error {
	if s.PortfolioID == "" {
		return ErrPortfolioIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO snapshots (portfolio_id, at, total_equity, cash_balance, positions_value, unrealized_pnl, realized_pnl, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.PortfolioID, s.At, s.TotalEquity, s.CashBalance, s.PositionsValue, s.UnrealizedPnL, s.RealizedPnL, s.OpenPositions)

	return err
}

// GetSnapshotsByPortfolio returns a portfolio's equity curve in time order.
func (q *PortfolioQueries) GetSnapshotsByPortfolio(ctx context.Context, portfolioID string, limit int) ([]SnapshotRow, error) {
	if portfolioID == "" {
		return nil, ErrPortfolioIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, portfolio_id, at, total_equity, cash_balance, positions_value,
		       COALESCE(unrealized_pnl, 0), COALESCE(realized_pnl, 0), COALESCE(open_positions, 0)
		FROM snapshots
		WHERE portfolio_id = ?
		ORDER BY seq
		LIMIT ?
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		if err := rows.Scan(&s.Seq, &s.PortfolioID, &s.At, &s.TotalEquity, &s.CashBalance,
			&s.PositionsValue, &s.UnrealizedPnL, &s.RealizedPnL, &s.OpenPositions); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
