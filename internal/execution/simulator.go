// Package execution simulates trade execution: it turns executed
// orders into fills carrying commission and slippage.
package execution

import (
	"log"

	"github.com/tiziaco/intelli-trader/internal/events"
	"github.com/tiziaco/intelli-trader/internal/order"
)

// FeeModel prices the commission of one trade.
type FeeModel interface {
	Commission(price, qty float64) float64
}

// ZeroFee charges nothing; the backtesting default.
type ZeroFee struct{}

func (ZeroFee) Commission(price, qty float64) float64 { return 0 }

// PercentFee charges a fixed fraction of traded value.
type PercentFee struct {
	Rate float64 // e.g. 0.001 for 10 bps
}

func (f PercentFee) Commission(price, qty float64) float64 {
	return price * qty * f.Rate
}

// Publisher is the slice of the event bus the simulator needs.
type Publisher interface {
	Publish(events.Event)
}

// Simulator converts order executions into fills. Slippage moves the
// fill price against the trader: up for buys, down for sells.
type Simulator struct {
	bus         Publisher
	fees        FeeModel
	slippageBps float64
}

// NewSimulator builds a simulator with the given fee model and slippage
// in basis points. A nil fee model charges nothing.
func NewSimulator(bus Publisher, fees FeeModel, slippageBps float64) *Simulator {
	if fees == nil {
		fees = ZeroFee{}
	}
	return &Simulator{bus: bus, fees: fees, slippageBps: slippageBps}
}

// HandleOrder reacts to order status transitions: fill transitions
// produce a FillEvent, everything else is ignored.
func (s *Simulator) HandleOrder(oe events.OrderEvent) {
	switch order.Status(oe.Status) {
	case order.StatusFilled, order.StatusPartiallyFilled:
	default:
		return
	}
	if oe.Quantity <= 0 {
		return
	}

	price := s.slip(oe.Side, oe.Price)
	commission := s.fees.Commission(price, oe.Quantity)

	s.bus.Publish(events.FillEvent{
		OrderID:     oe.OrderID,
		PortfolioID: oe.PortfolioID,
		Ticker:      oe.Ticker,
		Side:        oe.Side,
		Price:       price,
		Quantity:    oe.Quantity,
		Commission:  commission,
		Timestamp:   oe.Timestamp,
	})
	log.Printf("executor: fill %s %s %.8f %s @ %.4f commission=%.4f",
		oe.OrderID, oe.Side, oe.Quantity, oe.Ticker, price, commission)
}

func (s *Simulator) slip(side string, price float64) float64 {
	if s.slippageBps <= 0 {
		return price
	}
	adj := price * s.slippageBps / 10000
	if order.Side(side) == order.SideBuy {
		return price + adj
	}
	return price - adj
}
