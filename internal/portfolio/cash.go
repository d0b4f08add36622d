package portfolio

// CashManager tracks a portfolio's cash balance and the slice of it
// reserved for in-flight orders. It carries no lock of its own: all
// access is serialized by the owning Portfolio's mutex.
type CashManager struct {
	balance  float64
	reserved float64
}

// NewCashManager starts a cash book with the given opening balance.
func NewCashManager(initial float64) *CashManager {
	return &CashManager{balance: initial}
}

// Balance returns the total cash balance, including reserved funds.
func (c *CashManager) Balance() float64 { return c.balance }

// Available returns the spendable balance (total minus reserved).
func (c *CashManager) Available() float64 { return c.balance - c.reserved }

// Reserved returns the amount earmarked for in-flight orders.
func (c *CashManager) Reserved() float64 { return c.reserved }

// Reserve earmarks cash for a pending order. It fails without mutation
// when the spendable balance cannot cover the amount.
func (c *CashManager) Reserve(amount float64) error {
	if amount <= 0 {
		return nil
	}
	if amount > c.Available() {
		return &InsufficientFundsError{Required: amount, Available: c.Available()}
	}
	c.reserved += amount
	return nil
}

// Release returns previously reserved cash to the spendable pool.
// Releasing more than is reserved clamps to zero.
func (c *CashManager) Release(amount float64) {
	c.reserved -= amount
	if c.reserved < 0 {
		c.reserved = 0
	}
}

// CanApply reports whether a cash delta would keep the balance
// non-negative. Used by the transaction manager's validation phase.
func (c *CashManager) CanApply(delta float64) error {
	if c.balance+delta < 0 {
		return &InsufficientFundsError{Required: -delta, Available: c.balance}
	}
	return nil
}

// Apply moves the balance by delta. Outflows that would overdraw the
// account are refused without mutation.
func (c *CashManager) Apply(delta float64) error {
	if err := c.CanApply(delta); err != nil {
		return err
	}
	c.balance += delta
	return nil
}
