// Package market provides bar data sources for the engine.
package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/tiziaco/intelli-trader/internal/events"
)

// Publisher is the slice of the event bus the feed needs.
type Publisher interface {
	Publish(events.Event)
}

// MockFeed generates synthetic random-walk OHLCV bars for local
// development and demos.
type MockFeed struct {
	Bus        Publisher
	Tickers    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration

	prices map[string]float64
}

// Start launches the feed goroutine. It stops when ctx is cancelled.
func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if len(m.Tickers) == 0 {
		m.Tickers = []string{"BTCUSDT"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}
	m.prices = make(map[string]float64, len(m.Tickers))
	for _, t := range m.Tickers {
		m.prices[t] = m.StartPrice
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				for _, ticker := range m.Tickers {
					m.Bus.Publish(m.nextBar(ticker, now))
				}
			}
		}
	}()
}

// nextBar advances the random walk one step and wraps it in a bar whose
// open is the previous close.
func (m *MockFeed) nextBar(ticker string, now time.Time) events.BarEvent {
	open := m.prices[ticker]
	close := open + (rand.Float64()*2-1)*m.Step
	if close <= 0 {
		close = open
	}
	high := open
	low := open
	if close > high {
		high = close
	}
	if close < low {
		low = close
	}
	high += rand.Float64() * m.Step / 2
	low -= rand.Float64() * m.Step / 2
	if low <= 0 {
		low = close
	}
	m.prices[ticker] = close

	return events.BarEvent{
		Ticker:    ticker,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    rand.Float64() * 1000,
		Timestamp: now,
	}
}
