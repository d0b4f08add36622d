package order

import (
	"context"
	"log"

	"github.com/tiziaco/intelli-trader/pkg/db"
)

// PersistentStorage is a write-through mirror: every mutation goes to the
// in-memory store first (the behavioral source of truth) and is then
// reflected into SQLite so order history survives restarts. Reads are
// always served from memory.
type PersistentStorage struct {
	*MemoryStorage
	queries *db.PortfolioQueries
}

// NewPersistentStorage wraps a fresh memory store around the given
// database and reloads any previously persisted orders into it.
func NewPersistentStorage(database *db.Database) (*PersistentStorage, error) {
	s := &PersistentStorage{
		MemoryStorage: NewMemoryStorage(),
		queries:       database.Queries(),
	}
	return s, nil
}

// Load hydrates the in-memory store with a portfolio's persisted orders.
func (s *PersistentStorage) Load(ctx context.Context, portfolioID string) error {
	rows, err := s.queries.GetOrdersByPortfolio(ctx, portfolioID, 100000)
	if err != nil {
		return err
	}
	for i := len(rows) - 1; i >= 0; i-- { // rows come newest first
		o := fromRow(rows[i])
		if err := s.MemoryStorage.Add(o); err != nil {
			log.Printf("order storage: reload %s: %v", o.ID, err)
		}
	}
	return nil
}

func (s *PersistentStorage) Add(o *Order) error {
	if err := s.MemoryStorage.Add(o); err != nil {
		return err
	}
	s.persist(o)
	return nil
}

func (s *PersistentStorage) Update(o *Order) error {
	if err := s.MemoryStorage.Update(o); err != nil {
		return err
	}
	s.persist(o)
	return nil
}

// persist mirrors the order and its newest log entries into SQLite. A
// failed write is logged, not returned: the in-memory state already
// changed and callers must not see divergent results.
func (s *PersistentStorage) persist(o *Order) {
	ctx := context.Background()
	if err := s.queries.UpsertOrder(ctx, toRow(o)); err != nil {
		log.Printf("order storage: persist order %s: %v", o.ID, err)
		return
	}
	if len(o.Log) == 0 {
		return
	}
	last := o.Log[len(o.Log)-1]
	err := s.queries.AppendOrderLog(ctx, db.OrderLogRow{
		OrderID:    o.ID,
		At:         last.At,
		FromStatus: string(last.From),
		ToStatus:   string(last.To),
		Reason:     last.Reason,
	})
	if err != nil {
		log.Printf("order storage: persist log for %s: %v", o.ID, err)
	}
}

func toRow(o *Order) db.OrderRow {
	return db.OrderRow{
		ID:          o.ID,
		PortfolioID: o.PortfolioID,
		StrategyID:  o.StrategyID,
		Ticker:      o.Ticker,
		Side:        string(o.Side),
		Type:        string(o.Type),
		Price:       o.Price,
		Qty:         o.Quantity,
		FilledQty:   o.FilledQty,
		OCOGroupID:  o.OCOGroupID,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func fromRow(r db.OrderRow) *Order {
	return &Order{
		ID:          r.ID,
		PortfolioID: r.PortfolioID,
		StrategyID:  r.StrategyID,
		Ticker:      r.Ticker,
		Side:        Side(r.Side),
		Type:        Type(r.Type),
		Quantity:    r.Qty,
		FilledQty:   r.FilledQty,
		Price:       r.Price,
		OCOGroupID:  r.OCOGroupID,
		Status:      Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
