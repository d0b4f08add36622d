package db

import "time"

// OrderRow is the persisted form of a managed order.
type OrderRow struct {
	ID          string
	PortfolioID string
	StrategyID  string
	Ticker      string
	Side        string
	Type        string
	Price       float64
	Qty         float64
	FilledQty   float64
	OCOGroupID  string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderLogRow is one audit-log entry for an order.
type OrderLogRow struct {
	Seq        int64
	OrderID    string
	At         time.Time
	FromStatus string
	ToStatus   string
	Reason     string
}

// TransactionRow is the persisted form of an executed trade.
type TransactionRow struct {
	ID          string
	PortfolioID string
	OrderID     string
	Ticker      string
	Side        string
	Price       float64
	Qty         float64
	Commission  float64
	RealizedPnL float64
	CreatedAt   time.Time
}

// SnapshotRow is one point on a portfolio's equity curve.
type SnapshotRow struct {
	Seq            int64
	PortfolioID    string
	At             time.Time
	TotalEquity    float64
	CashBalance    float64
	PositionsValue float64
	UnrealizedPnL  float64
	RealizedPnL    float64
	OpenPositions  int
}
