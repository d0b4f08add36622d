// Package risk implements the signal approval chain: compliance checks
// and position sizing applied between validation and order creation.
package risk

import (
	"fmt"
	"log"
	"math"

	"github.com/tiziaco/intelli-trader/internal/events"
	"github.com/tiziaco/intelli-trader/internal/order"
)

// RejectionError reports a signal refused by an approval stage.
type RejectionError struct {
	Stage  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected signal: %s", e.Stage, e.Reason)
}

// Compliance refuses entries for tickers the portfolio already holds.
// One position per ticker keeps sizing and exit logic unambiguous.
type Compliance struct{}

// NewCompliance returns the default compliance stage.
func NewCompliance() *Compliance { return &Compliance{} }

// Approve implements order.Approver.
func (c *Compliance) Approve(sig events.SignalEvent, view order.PortfolioView) (events.SignalEvent, error) {
	if view == nil {
		return sig, nil
	}
	if view.Exposure(sig.Ticker) != 0 {
		return sig, &RejectionError{
			Stage:  "compliance",
			Reason: fmt.Sprintf("portfolio already holds a position in %s", sig.Ticker),
		}
	}
	return sig, nil
}

// Sizer assigns a quantity to signals that arrive without one, spending
// a fraction of available cash at the signal price. The fraction can be
// set per portfolio; CashFraction applies where none is set. Signals
// that already carry a quantity pass through untouched.
type Sizer struct {
	CashFraction float64
	fractions    map[string]float64
}

// NewSizer returns a sizer spending the given fraction of available
// cash per entry. Fractions outside (0, 1] fall back to 0.05.
func NewSizer(fraction float64) *Sizer {
	if fraction <= 0 || fraction > 1 {
		fraction = 0.05
	}
	return &Sizer{CashFraction: fraction, fractions: make(map[string]float64)}
}

// SetFraction overrides the cash fraction for one portfolio. Fractions
// outside (0, 1] are ignored.
func (s *Sizer) SetFraction(portfolioID string, fraction float64) {
	if fraction <= 0 || fraction > 1 {
		return
	}
	s.fractions[portfolioID] = fraction
}

func (s *Sizer) fractionFor(portfolioID string) float64 {
	if f, ok := s.fractions[portfolioID]; ok {
		return f
	}
	return s.CashFraction
}

// Approve implements order.Approver.
func (s *Sizer) Approve(sig events.SignalEvent, view order.PortfolioView) (events.SignalEvent, error) {
	if sig.Quantity > 0 {
		return sig, nil
	}
	if view == nil {
		return sig, &RejectionError{Stage: "sizer", Reason: "no portfolio view available to size against"}
	}
	if sig.Price <= 0 {
		return sig, &RejectionError{Stage: "sizer", Reason: "cannot size without a positive price"}
	}

	fraction := s.fractionFor(sig.PortfolioID)
	budget := view.AvailableCash() * fraction
	qty := budget / sig.Price
	// Round down to 8 decimal places so the order value never exceeds
	// the budget through floating-point noise.
	qty = math.Floor(qty*1e8) / 1e8
	if qty <= 0 {
		return sig, &RejectionError{
			Stage:  "sizer",
			Reason: fmt.Sprintf("budget %.2f too small at price %.4f", budget, sig.Price),
		}
	}

	sig.Quantity = qty
	log.Printf("risk: sized %s %s to %.8f (%.1f%% of %.2f cash)",
		sig.Side, sig.Ticker, qty, fraction*100, view.AvailableCash())
	return sig, nil
}
