package events

import "time"

// Type enumerates the event topics flowing through the trading core.
type Type string

const (
	TypeSignal Type = "signal"
	TypeOrder  Type = "order"
	TypeFill   Type = "fill"
	TypeBar    Type = "bar"
)

// Event is anything that can travel on the bus. Payloads are routed to
// handlers by their Type.
type Event interface {
	EventType() Type
	Time() time.Time
}

// SignalEvent is produced by a strategy and consumed by the order manager.
// StopLoss/TakeProfit are optional protective levels; zero means unset.
type SignalEvent struct {
	Ticker      string
	Side        string // BUY or SELL
	Quantity    float64
	OrderType   string // MARKET, STOP or LIMIT
	Price       float64
	StopLoss    float64
	TakeProfit  float64
	StrategyID  string
	PortfolioID string
	Timestamp   time.Time
}

func (e SignalEvent) EventType() Type { return TypeSignal }
func (e SignalEvent) Time() time.Time { return e.Timestamp }

// OrderEvent is emitted by the order manager on every status transition.
type OrderEvent struct {
	OrderID     string
	PortfolioID string
	Ticker      string
	Type        string
	Side        string
	Quantity    float64
	Price       float64
	Status      string
	Timestamp   time.Time
}

func (e OrderEvent) EventType() Type { return TypeOrder }
func (e OrderEvent) Time() time.Time { return e.Timestamp }

// FillEvent is produced by an execution collaborator and consumed by the
// transaction manager via the order manager.
type FillEvent struct {
	OrderID     string
	PortfolioID string
	Ticker      string
	Side        string
	Price       float64
	Quantity    float64
	Commission  float64
	Timestamp   time.Time
}

func (e FillEvent) EventType() Type { return TypeFill }
func (e FillEvent) Time() time.Time { return e.Timestamp }

// BarEvent carries one OHLCV bar for a ticker.
type BarEvent struct {
	Ticker    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

func (e BarEvent) EventType() Type { return TypeBar }
func (e BarEvent) Time() time.Time { return e.Timestamp }
