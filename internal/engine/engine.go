// Package engine is the composition root: it wires the event bus, the
// order manager, execution, the portfolio ledgers and metrics together.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/tiziaco/intelli-trader/internal/events"
	"github.com/tiziaco/intelli-trader/internal/execution"
	"github.com/tiziaco/intelli-trader/internal/metrics"
	"github.com/tiziaco/intelli-trader/internal/order"
	"github.com/tiziaco/intelli-trader/internal/portfolio"
	"github.com/tiziaco/intelli-trader/internal/risk"
	"github.com/tiziaco/intelli-trader/pkg/config"
	"github.com/tiziaco/intelli-trader/pkg/db"
)

// Engine composes the trading core. All event flow goes through one bus
// with a single dispatch goroutine, which serializes every handler.
type Engine struct {
	cfg *config.Config

	Bus        *events.Bus
	Portfolios *portfolio.Registry
	Orders     *order.Manager
	Executor   *execution.Simulator

	metrics  map[string]*metrics.Manager
	database *db.Database
}

// New builds an engine from configuration and portfolio definitions.
func New(cfg *config.Config, portfolios []config.PortfolioConfig) (*Engine, error) {
	bus := events.NewBus(cfg.BusCapacity)
	registry := portfolio.NewRegistry()

	e := &Engine{
		cfg:        cfg,
		Bus:        bus,
		Portfolios: registry,
		metrics:    make(map[string]*metrics.Manager),
	}

	sizer := risk.NewSizer(0.05)
	validators := make(map[string]*order.Validator)
	for _, pc := range portfolios {
		p := portfolio.New(pc.ID, pc.Name, pc.InitialCash)
		registry.Add(p)
		e.metrics[pc.ID] = metrics.NewManager(p,
			metrics.WithCapacity(cfg.SnapshotCapacity),
			metrics.WithCaptureRate(cfg.SnapshotRatePerSec),
			metrics.WithCacheTTL(cfg.SnapshotCacheTTL),
		)
		v := order.NewValidator()
		if pc.MaxPositions > 0 {
			v.MaxPositions = pc.MaxPositions
		}
		if pc.MaxConcentrationPct > 0 {
			v.MaxConcentrationPct = pc.MaxConcentrationPct
		}
		validators[pc.ID] = v
		sizer.SetFraction(pc.ID, pc.CashFraction)
	}

	storage, err := e.buildStorage()
	if err != nil {
		return nil, err
	}

	views := func(portfolioID string) order.PortfolioView {
		p, err := registry.Get(portfolioID)
		if err != nil {
			return nil
		}
		return p
	}
	// The order manager and the simulator publish from inside bus
	// handlers; they get the non-blocking emitter surface.
	approvers := []order.Approver{risk.NewCompliance(), sizer}
	e.Orders = order.NewManager(storage, bus.Emitter(),
		func(id string) *order.Validator { return validators[id] },
		approvers, views, order.ExecutionMode(cfg.ExecutionMode))

	e.Executor = execution.NewSimulator(bus.Emitter(), execution.PercentFee{Rate: cfg.FeeRate}, cfg.SlippageBps)

	e.subscribe()
	return e, nil
}

func (e *Engine) buildStorage() (order.Storage, error) {
	if e.cfg.StorageBackend != "persistent" {
		return order.NewMemoryStorage(), nil
	}
	database, err := db.New(e.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(database); err != nil {
		database.Close()
		return nil, err
	}
	e.database = database
	return order.NewPersistentStorage(database)
}

// subscribe registers the event flow: signals create orders, bars drive
// triggers and revaluation, order fills become simulated executions,
// executions mutate the ledger and invalidate metrics.
func (e *Engine) subscribe() {
	e.Bus.Subscribe(events.TypeSignal, func(ev events.Event) {
		sig := ev.(events.SignalEvent)
		if _, err := e.Orders.HandleSignal(sig); err != nil {
			log.Printf("engine: signal %s %s dropped: %v", sig.Side, sig.Ticker, err)
		}
	})

	e.Bus.Subscribe(events.TypeBar, func(ev events.Event) {
		bar := ev.(events.BarEvent)
		e.Orders.HandleBar(bar)
		for _, p := range e.Portfolios.All() {
			p.MarkPrice(bar.Ticker, bar.Close, bar.Timestamp)
			e.metrics[p.ID].Capture(bar.Timestamp)
		}
	})

	e.Bus.Subscribe(events.TypeOrder, func(ev events.Event) {
		e.Executor.HandleOrder(ev.(events.OrderEvent))
	})

	e.Bus.Subscribe(events.TypeFill, func(ev events.Event) {
		e.handleFill(ev.(events.FillEvent))
	})
}

func (e *Engine) handleFill(fill events.FillEvent) {
	p, err := e.Portfolios.Get(fill.PortfolioID)
	if err != nil {
		log.Printf("engine: fill for unknown portfolio %s", fill.PortfolioID)
		return
	}
	tx, err := p.ProcessFill(fill)
	if err != nil {
		return
	}
	if m := e.metrics[p.ID]; m != nil {
		m.Invalidate()
		m.Record(fill.Timestamp)
	}
	e.persistTransaction(tx)
}

func (e *Engine) persistTransaction(tx *portfolio.Transaction) {
	if e.database == nil || tx == nil {
		return
	}
	err := e.database.Queries().CreateTransaction(context.Background(), db.TransactionRow{
		ID:          tx.ID,
		PortfolioID: tx.PortfolioID,
		OrderID:     tx.OrderID,
		Ticker:      tx.Ticker,
		Side:        tx.Side,
		Price:       tx.Price,
		Qty:         tx.Quantity,
		Commission:  tx.Commission,
		RealizedPnL: tx.RealizedPnL,
		CreatedAt:   tx.Timestamp,
	})
	if err != nil {
		log.Printf("engine: persist transaction %s: %v", tx.ID, err)
	}
}

// Metrics returns the metrics manager of a portfolio, nil if unknown.
func (e *Engine) Metrics(portfolioID string) *metrics.Manager {
	return e.metrics[portfolioID]
}

// Run drives the bus dispatch loop until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	log.Printf("engine: starting (mode=%s, storage=%s, portfolios=%d)",
		e.cfg.ExecutionMode, e.cfg.StorageBackend, len(e.Portfolios.All()))
	e.Bus.Run(ctx)
}

// Snapshot records an on-demand snapshot for every portfolio and, with
// a persistent backend, writes the equity-curve point through.
func (e *Engine) Snapshot(ts time.Time) {
	for _, p := range e.Portfolios.All() {
		if m := e.metrics[p.ID]; m != nil {
			m.Record(ts)
		}
		e.persistSnapshot(p, ts)
	}
}

func (e *Engine) persistSnapshot(p *portfolio.Portfolio, ts time.Time) {
	if e.database == nil {
		return
	}
	snap := p.Snapshot(ts)
	err := e.database.Queries().CreateSnapshot(context.Background(), db.SnapshotRow{
		PortfolioID:    p.ID,
		At:             snap.Timestamp,
		TotalEquity:    snap.TotalEquity,
		CashBalance:    snap.CashBalance,
		PositionsValue: snap.PositionsValue,
		UnrealizedPnL:  snap.UnrealizedPnL,
		RealizedPnL:    snap.RealizedPnL,
		OpenPositions:  snap.OpenPositions,
	})
	if err != nil {
		log.Printf("engine: persist snapshot for %s: %v", p.ID, err)
	}
}

// Close releases engine resources.
func (e *Engine) Close() error {
	if e.database != nil {
		return e.database.Close()
	}
	return nil
}
