package stockgate

import "tiendapos/client/internal/domain"

type Decision int

const (
	Approved Decision = iota
	Rejected
	ConfirmationRequired
)

// Result is the gate's verdict for one add attempt. Reason carries the
// rejection sentinel; ForceQuantity is the quantity a confirmed force-add
// must use (always one unit at a time, regardless of what was requested).
type Result struct {
	Decision      Decision
	Reason        error
	ForceQuantity int
}

// Evaluate decides whether a resolved combination may enter the cart.
// A controlled unit that is still active bypasses the bulk counter: the tag
// itself proves the unit exists.
func Evaluate(stock domain.StockRecord, controlledActive bool, allowOutOfStockSales bool) Result {
	if controlledActive || stock.QuantityAvailable > 0 {
		return Result{Decision: Approved}
	}
	if !allowOutOfStockSales {
		return Result{Decision: Rejected, Reason: domain.ErrOutOfStock}
	}
	return Result{Decision: ConfirmationRequired, Reason: domain.ErrOutOfStock, ForceQuantity: 1}
}
