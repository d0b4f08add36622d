package order

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Filter selects orders in Search. Zero fields match everything.
type Filter struct {
	PortfolioID string
	Ticker      string
	Side        Side
	Type        Type
	Status      Status
	From        time.Time
	To          time.Time
	ActiveOnly  bool
	Text        string // substring match on id, ticker or strategy id
}

// Storage is the canonical, append-only record of every order ever
// created, with a fast active index for trigger evaluation. Transitions
// into a terminal status deactivate an order but never delete it.
type Storage interface {
	Add(o *Order) error
	Update(o *Order) error
	Get(id string) (*Order, error)

	// Active returns non-terminal orders, optionally scoped to a portfolio
	// ("" means all portfolios).
	Active(portfolioID string) []*Order
	ActiveByTicker(ticker string) []*Order

	ByTicker(ticker string) []*Order
	ByStatus(s Status) []*Order
	InRange(from, to time.Time) []*Order
	Search(f Filter) []*Order
	All() []*Order

	// ClearPortfolio removes a portfolio's orders from the active index
	// only; history is never erased.
	ClearPortfolio(portfolioID string) int
}

// MemoryStorage keeps every order in one arena keyed by id, plus
// active-index sets by portfolio and ticker. It is the default backend
// and the behavioral contract the persistent backend mirrors.
type MemoryStorage struct {
	mu     sync.RWMutex
	orders map[string]*Order
	seq    []string // insertion order, so queries return stable results

	activeByPortfolio map[string]map[string]struct{}
	activeByTicker    map[string]map[string]struct{}
}

// NewMemoryStorage creates an empty in-memory order store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		orders:            make(map[string]*Order),
		activeByPortfolio: make(map[string]map[string]struct{}),
		activeByTicker:    make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStorage) Add(o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("storage: duplicate order id %s", o.ID)
	}
	s.orders[o.ID] = o
	s.seq = append(s.seq, o.ID)
	s.reindex(o)
	return nil
}

func (s *MemoryStorage) Update(o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return ErrNotFound
	}
	s.orders[o.ID] = o
	s.reindex(o)
	return nil
}

func (s *MemoryStorage) Get(id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStorage) Active(portfolioID string) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, id := range s.seq {
		o := s.orders[id]
		if portfolioID != "" && o.PortfolioID != portfolioID {
			continue
		}
		if _, ok := s.activeByPortfolio[o.PortfolioID][id]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (s *MemoryStorage) ActiveByTicker(ticker string) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.activeByTicker[ticker]
	var out []*Order
	for _, id := range s.seq {
		if _, ok := ids[id]; ok {
			out = append(out, s.orders[id])
		}
	}
	return out
}

func (s *MemoryStorage) ByTicker(ticker string) []*Order {
	return s.Search(Filter{Ticker: ticker})
}

func (s *MemoryStorage) ByStatus(st Status) []*Order {
	return s.Search(Filter{Status: st})
}

func (s *MemoryStorage) InRange(from, to time.Time) []*Order {
	return s.Search(Filter{From: from, To: to})
}

func (s *MemoryStorage) Search(f Filter) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, id := range s.seq {
		o := s.orders[id]
		if matches(o, f) {
			out = append(out, o)
		}
	}
	return out
}

func (s *MemoryStorage) All() []*Order {
	return s.Search(Filter{})
}

func (s *MemoryStorage) ClearPortfolio(portfolioID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.activeByPortfolio[portfolioID]
	n := len(ids)
	for id := range ids {
		o := s.orders[id]
		delete(s.activeByTicker[o.Ticker], id)
	}
	delete(s.activeByPortfolio, portfolioID)
	return n
}

// reindex keeps the active sets in line with the order's status.
// Callers hold the write lock.
func (s *MemoryStorage) reindex(o *Order) {
	if o.Status.Terminal() {
		delete(s.activeByPortfolio[o.PortfolioID], o.ID)
		delete(s.activeByTicker[o.Ticker], o.ID)
		return
	}
	if s.activeByPortfolio[o.PortfolioID] == nil {
		s.activeByPortfolio[o.PortfolioID] = make(map[string]struct{})
	}
	if s.activeByTicker[o.Ticker] == nil {
		s.activeByTicker[o.Ticker] = make(map[string]struct{})
	}
	s.activeByPortfolio[o.PortfolioID][o.ID] = struct{}{}
	s.activeByTicker[o.Ticker][o.ID] = struct{}{}
}

func matches(o *Order, f Filter) bool {
	if f.PortfolioID != "" && o.PortfolioID != f.PortfolioID {
		return false
	}
	if f.Ticker != "" && o.Ticker != f.Ticker {
		return false
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.ActiveOnly && o.Status.Terminal() {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.CreatedAt.After(f.To) {
		return false
	}
	if f.Text != "" {
		t := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(o.ID), t) &&
			!strings.Contains(strings.ToLower(o.Ticker), t) &&
			!strings.Contains(strings.ToLower(o.StrategyID), t) {
			return false
		}
	}
	return true
}
