package db

import (
	"context"
	"testing"
	"time"
)

func setupDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestQueriesRequirePortfolioID(t *testing.T) {
	q := setupDB(t).Queries()
	ctx := context.Background()

	t.Run("UpsertOrder requires portfolioID", func(t *testing.T) {
		if err := q.UpsertOrder(ctx, OrderRow{ID: "o1"}); err != ErrPortfolioIDRequired {
			t.Errorf("expected ErrPortfolioIDRequired, got %v", err)
		}
	})

	t.Run("GetOrdersByPortfolio requires portfolioID", func(t *testing.T) {
		if _, err := q.GetOrdersByPortfolio(ctx, "", 100); err != ErrPortfolioIDRequired {
			t.Errorf("expected ErrPortfolioIDRequired, got %v", err)
		}
	})

	t.Run("CreateTransaction requires portfolioID", func(t *testing.T) {
		if err := q.CreateTransaction(ctx, TransactionRow{ID: "t1"}); err != ErrPortfolioIDRequired {
			t.Errorf("expected ErrPortfolioIDRequired, got %v", err)
		}
	})

	t.Run("CreateSnapshot requires portfolioID", func(t *testing.T) {
		if err := q.CreateSnapshot(ctx, SnapshotRow{}); err != ErrPortfolioIDRequired {
			t.Errorf("expected ErrPortfolioIDRequired, got %v", err)
		}
	})
}

func TestOrderRoundTrip(t *testing.T) {
	q := setupDB(t).Queries()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	row := OrderRow{
		ID:          "order-1",
		PortfolioID: "p1",
		StrategyID:  "momentum",
		Ticker:      "BTCUSDT",
		Side:        "BUY",
		Type:        "LIMIT",
		Price:       50000,
		Qty:         0.5,
		OCOGroupID:  "group-1",
		Status:      "PENDING",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.UpsertOrder(ctx, row); err != nil {
		t.Fatalf("Failed to insert order: %v", err)
	}

	got, err := q.GetOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("Failed to get order: %v", err)
	}
	if got.Ticker != "BTCUSDT" || got.Status != "PENDING" || got.OCOGroupID != "group-1" {
		t.Errorf("unexpected order: %+v", got)
	}

	// Upsert updates mutable fields only.
	row.Status = "FILLED"
	row.FilledQty = 0.5
	if err := q.UpsertOrder(ctx, row); err != nil {
		t.Fatalf("Failed to update order: %v", err)
	}
	got, _ = q.GetOrder(ctx, "order-1")
	if got.Status != "FILLED" || got.FilledQty != 0.5 {
		t.Errorf("update not applied: %+v", got)
	}

	if _, err := q.GetOrder(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveOrdersQuery(t *testing.T) {
	q := setupDB(t).Queries()
	ctx := context.Background()
	now := time.Now().UTC()

	statuses := map[string]string{
		"o1": "PENDING",
		"o2": "PARTIALLY_FILLED",
		"o3": "FILLED",
		"o4": "CANCELLED",
	}
	for id, status := range statuses {
		err := q.UpsertOrder(ctx, OrderRow{
			ID: id, PortfolioID: "p1", Ticker: "BTCUSDT", Side: "BUY", Type: "LIMIT",
			Price: 100, Qty: 1, Status: status, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("Failed to insert %s: %v", id, err)
		}
	}

	active, err := q.GetActiveOrdersByPortfolio(ctx, "p1")
	if err != nil {
		t.Fatalf("Failed to query active orders: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active orders, got %d", len(active))
	}
	for _, o := range active {
		if o.Status == "FILLED" || o.Status == "CANCELLED" {
			t.Errorf("terminal order returned as active: %+v", o)
		}
	}
}

func TestOrderLogAppendAndRead(t *testing.T) {
	q := setupDB(t).Queries()
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []OrderLogRow{
		{OrderID: "o1", At: now, FromStatus: "", ToStatus: "PENDING", Reason: "created"},
		{OrderID: "o1", At: now.Add(time.Second), FromStatus: "PENDING", ToStatus: "FILLED", Reason: "market execution"},
	}
	for _, e := range entries {
		if err := q.AppendOrderLog(ctx, e); err != nil {
			t.Fatalf("Failed to append log: %v", err)
		}
	}

	got, err := q.GetOrderLog(ctx, "o1")
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ToStatus != "PENDING" || got[1].ToStatus != "FILLED" {
		t.Errorf("log out of order: %+v", got)
	}
}

func TestTransactionIsolationAndRange(t *testing.T) {
	q := setupDB(t).Queries()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := []TransactionRow{
		{ID: "t1", PortfolioID: "p1", Ticker: "BTCUSDT", Side: "BUY", Price: 100, Qty: 1, CreatedAt: base},
		{ID: "t2", PortfolioID: "p1", Ticker: "ETHUSDT", Side: "SELL", Price: 200, Qty: 2, RealizedPnL: 50, CreatedAt: base.Add(time.Hour)},
		{ID: "t3", PortfolioID: "p2", Ticker: "BTCUSDT", Side: "BUY", Price: 300, Qty: 3, CreatedAt: base},
	}
	for _, r := range rows {
		if err := q.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("Failed to insert %s: %v", r.ID, err)
		}
	}

	t.Run("portfolio isolation", func(t *testing.T) {
		got, err := q.GetTransactionsByPortfolio(ctx, "p1", 100)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 transactions for p1, got %d", len(got))
		}
	})

	t.Run("range query", func(t *testing.T) {
		got, err := q.GetTransactionsInRange(ctx, "p1", base.Add(30*time.Minute), base.Add(90*time.Minute))
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "t2" {
			t.Errorf("expected only t2, got %+v", got)
		}
		if got[0].RealizedPnL != 50 {
			t.Errorf("realized pnl lost in round-trip: %f", got[0].RealizedPnL)
		}
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	q := setupDB(t).Queries()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, eq := range []float64{10000, 10100, 9900} {
		err := q.CreateSnapshot(ctx, SnapshotRow{
			PortfolioID: "p1",
			At:          base.Add(time.Duration(i) * time.Minute),
			TotalEquity: eq,
			CashBalance: eq,
		})
		if err != nil {
			t.Fatalf("Failed to insert snapshot: %v", err)
		}
	}

	got, err := q.GetSnapshotsByPortfolio(ctx, "p1", 100)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(got))
	}
	if got[0].TotalEquity != 10000 || got[2].TotalEquity != 9900 {
		t.Errorf("snapshots out of order: %+v", got)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	database := setupDB(t)
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
}
