package order

import (
	"fmt"
	"strings"

	"github.com/tiziaco/intelli-trader/internal/events"
)

// PortfolioView is the read-only slice of portfolio state the validator
// and the approval chain consult. Implemented by portfolio.Portfolio.
type PortfolioView interface {
	AvailableCash() float64
	TotalEquity() float64
	OpenPositionCount() int
	// Exposure returns the absolute market value currently held in a ticker.
	Exposure(ticker string) float64
}

// Severity of a validation message.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Message is a single validation finding.
type Message struct {
	Severity Severity
	Field    string
	Text     string
}

// Result of a validation pass. Warnings do not block acceptance.
type Result struct {
	OK       bool
	Messages []Message
}

// Errors returns the hard failures.
func (r Result) Errors() []Message {
	var out []Message
	for _, m := range r.Messages {
		if m.Severity == SeverityError {
			out = append(out, m)
		}
	}
	return out
}

// Warnings returns the soft findings.
func (r Result) Warnings() []Message {
	var out []Message
	for _, m := range r.Messages {
		if m.Severity == SeverityWarning {
			out = append(out, m)
		}
	}
	return out
}

// Err converts a failed result into a ValidationError, nil otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &ValidationError{Messages: r.Errors()}
}

// Validator runs stateless input and business-rule checks before order
// creation and modification. It never mutates anything.
type Validator struct {
	MinPrice            float64
	MaxPrice            float64
	MinQuantity         float64
	MaxQuantity         float64
	MinOrderValue       float64
	MaxOrderValue       float64
	MaxPositions        int
	MaxConcentrationPct float64
}

// NewValidator returns a validator with the default limits.
func NewValidator() *Validator {
	return &Validator{
		MinPrice:            0.00000001,
		MaxPrice:            10000000,
		MinQuantity:         0.00000001,
		MaxQuantity:         100000000,
		MinOrderValue:       1.0,
		MaxOrderValue:       10000000,
		MaxPositions:        100,
		MaxConcentrationPct: 0.20,
	}
}

// ValidateSignal checks a signal against input rules and, when a view is
// provided, against the owning portfolio's constraints.
func (v *Validator) ValidateSignal(sig events.SignalEvent, view PortfolioView) Result {
	var msgs []Message
	fail := func(field, format string, args ...any) {
		msgs = append(msgs, Message{Severity: SeverityError, Field: field, Text: fmt.Sprintf(format, args...)})
	}
	warn := func(field, format string, args ...any) {
		msgs = append(msgs, Message{Severity: SeverityWarning, Field: field, Text: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(sig.Ticker) == "" {
		fail("ticker", "ticker is required")
	}
	switch Side(sig.Side) {
	case SideBuy, SideSell:
	default:
		fail("side", "side %q is not BUY or SELL", sig.Side)
	}
	switch Type(sig.OrderType) {
	case TypeMarket, TypeStop, TypeLimit, "":
	default:
		fail("order_type", "order type %q is not MARKET, STOP or LIMIT", sig.OrderType)
	}
	if sig.Price <= 0 {
		fail("price", "price must be positive, got %.8f", sig.Price)
	} else if sig.Price < v.MinPrice || sig.Price > v.MaxPrice {
		fail("price", "price %.8f outside allowed range [%.8f, %.2f]", sig.Price, v.MinPrice, v.MaxPrice)
	}
	if sig.Quantity < 0 {
		fail("quantity", "quantity must not be negative, got %.8f", sig.Quantity)
	} else if sig.Quantity > v.MaxQuantity {
		fail("quantity", "quantity %.8f exceeds maximum %.8f", sig.Quantity, v.MaxQuantity)
	} else if sig.Quantity == 0 {
		warn("quantity", "quantity is zero; the position sizer will assign one")
	}

	// Protective levels must sit on the correct side of the entry price:
	// a long is protected by a stop below and a take-profit above, a short
	// by the mirror image.
	if sig.StopLoss > 0 && sig.Price > 0 {
		if Side(sig.Side) == SideBuy && sig.StopLoss >= sig.Price {
			fail("stop_loss", "stop loss %.4f must be below entry price %.4f for a BUY", sig.StopLoss, sig.Price)
		}
		if Side(sig.Side) == SideSell && sig.StopLoss <= sig.Price {
			fail("stop_loss", "stop loss %.4f must be above entry price %.4f for a SELL", sig.StopLoss, sig.Price)
		}
	}
	if sig.TakeProfit > 0 && sig.Price > 0 {
		if Side(sig.Side) == SideBuy && sig.TakeProfit <= sig.Price {
			fail("take_profit", "take profit %.4f must be above entry price %.4f for a BUY", sig.TakeProfit, sig.Price)
		}
		if Side(sig.Side) == SideSell && sig.TakeProfit >= sig.Price {
			fail("take_profit", "take profit %.4f must be below entry price %.4f for a SELL", sig.TakeProfit, sig.Price)
		}
	}

	if sig.Quantity > 0 && sig.Price > 0 {
		value := sig.Quantity * sig.Price
		if value < v.MinOrderValue {
			fail("value", "order value %.2f below minimum %.2f", value, v.MinOrderValue)
		}
		if value > v.MaxOrderValue {
			fail("value", "order value %.2f exceeds maximum %.2f", value, v.MaxOrderValue)
		}
	}

	if view != nil && sig.Quantity > 0 && sig.Price > 0 {
		value := sig.Quantity * sig.Price
		if Side(sig.Side) == SideBuy && value > view.AvailableCash() {
			fail("cash", "insufficient cash: need %.2f, available %.2f", value, view.AvailableCash())
		}
		if view.Exposure(sig.Ticker) == 0 && view.OpenPositionCount() >= v.MaxPositions {
			fail("positions", "portfolio already holds the maximum of %d positions", v.MaxPositions)
		}
		if eq := view.TotalEquity(); eq > 0 {
			concentration := (view.Exposure(sig.Ticker) + value) / eq
			if concentration > v.MaxConcentrationPct {
				warn("concentration", "position would be %.1f%% of equity (limit %.1f%%)",
					concentration*100, v.MaxConcentrationPct*100)
			}
		}
	}

	ok := true
	for _, m := range msgs {
		if m.Severity == SeverityError {
			ok = false
			break
		}
	}
	return Result{OK: ok, Messages: msgs}
}

// ValidateModify re-runs the input checks against an order's proposed
// new parameters.
func (v *Validator) ValidateModify(o *Order, qty, price float64, view PortfolioView) Result {
	sig := events.SignalEvent{
		Ticker:      o.Ticker,
		Side:        string(o.Side),
		Quantity:    qty,
		OrderType:   string(o.Type),
		Price:       price,
		PortfolioID: o.PortfolioID,
	}
	res := v.ValidateSignal(sig, view)
	if qty <= 0 {
		res.OK = false
		res.Messages = append(res.Messages, Message{Severity: SeverityError, Field: "quantity",
			Text: fmt.Sprintf("quantity must be positive, got %.8f", qty)})
	}
	return res
}
