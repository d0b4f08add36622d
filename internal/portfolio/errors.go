package portfolio

import (
	"errors"
	"fmt"
)

// ErrPortfolioNotFound is returned by registry lookups for unknown ids.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// InsufficientFundsError reports a cash requirement the portfolio
// cannot cover. Nothing is mutated when it is returned.
type InsufficientFundsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %.2f, available %.2f", e.Required, e.Available)
}

// InvalidReductionError reports an attempt to reduce a position by more
// than its open quantity.
type InvalidReductionError struct {
	Ticker    string
	Requested float64
	Open      float64
}

func (e *InvalidReductionError) Error() string {
	return fmt.Sprintf("invalid reduction on %s: requested %.8f, open %.8f", e.Ticker, e.Requested, e.Open)
}
