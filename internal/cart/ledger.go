package cart

import (
	"math"

	"tiendapos/client/internal/domain"
)

// Ledger owns the authoritative cart lines for one open ticket. It does no
// locking of its own; the checkout session serializes access to it. Callers
// snapshot via Lines().
type Ledger struct {
	lines []domain.CartLine
}

func NewLedger() *Ledger {
	return &Ledger{lines: make([]domain.CartLine, 0, 8)}
}

// DeriveExclCents computes the excl-tax unit price from the incl-tax price,
// rounded half away from zero. The value is fixed at add time and never
// recomputed if tax configuration changes later.
func DeriveExclCents(inclCents int64, taxRate float64) int64 {
	if taxRate <= 0 {
		taxRate = domain.DefaultTaxRate
	}
	return int64(math.Round(float64(inclCents) / (1 + taxRate)))
}

// AddLine merges into an existing line with the same (product, attribute,
// stock record) key by incrementing quantity by one. Controlled units are
// never merged: each tag is its own line with quantity fixed at one, and the
// same tag cannot enter the cart twice.
func (l *Ledger) AddLine(combo domain.Combination, stock domain.StockRecord, controlID *int64) (domain.CartLine, error) {
	return l.addLine(combo, stock, controlID, 1)
}

// ForceAddLine is the confirmed out-of-stock path: it always proposes exactly
// one more unit, regardless of the quantity already on the line.
func (l *Ledger) ForceAddLine(combo domain.Combination, stock domain.StockRecord) (domain.CartLine, error) {
	return l.addLine(combo, stock, nil, 1)
}

func (l *Ledger) addLine(combo domain.Combination, stock domain.StockRecord, controlID *int64, qty int) (domain.CartLine, error) {
	taxRate := combo.TaxRate
	if taxRate <= 0 {
		taxRate = domain.DefaultTaxRate
	}

	if controlID != nil {
		for _, line := range l.lines {
			if line.ControlID != nil && *line.ControlID == *controlID && line.StockRecordID == stock.StockRecordID {
				return domain.CartLine{}, domain.ErrControlUnitDuplicate
			}
		}
		id := *controlID
		line := domain.CartLine{
			ProductID:          combo.ProductID,
			AttributeID:        combo.AttributeID,
			StockRecordID:      stock.StockRecordID,
			ShopID:             stock.ShopID,
			ControlID:          &id,
			Quantity:           1,
			UnitPriceInclCents: combo.PriceInclCents,
			UnitPriceExclCents: DeriveExclCents(combo.PriceInclCents, taxRate),
			TaxRate:            taxRate,
			Name:               combo.Name,
			Reference:          combo.Reference,
		}
		l.lines = append(l.lines, line)
		return line, nil
	}

	for i := range l.lines {
		line := &l.lines[i]
		if line.ControlID != nil {
			continue
		}
		if line.ProductID == combo.ProductID && line.AttributeID == combo.AttributeID && line.StockRecordID == stock.StockRecordID {
			line.Quantity += qty
			return *line, nil
		}
	}

	line := domain.CartLine{
		ProductID:          combo.ProductID,
		AttributeID:        combo.AttributeID,
		StockRecordID:      stock.StockRecordID,
		ShopID:             stock.ShopID,
		Quantity:           qty,
		UnitPriceInclCents: combo.PriceInclCents,
		UnitPriceExclCents: DeriveExclCents(combo.PriceInclCents, taxRate),
		TaxRate:            taxRate,
		Name:               combo.Name,
		Reference:          combo.Reference,
	}
	l.lines = append(l.lines, line)
	return line, nil
}

// DecreaseLine lowers the quantity by one and removes the line when it
// reaches zero. Zero-quantity lines are never kept.
func (l *Ledger) DecreaseLine(key domain.LineKey) bool {
	for i := range l.lines {
		if l.lines[i].Key() != key {
			continue
		}
		l.lines[i].Quantity--
		if l.lines[i].Quantity <= 0 {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
		}
		return true
	}
	return false
}

func (l *Ledger) RemoveLine(key domain.LineKey) bool {
	for i := range l.lines {
		if l.lines[i].Key() == key {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Ledger) Clear() {
	l.lines = l.lines[:0]
}

func (l *Ledger) Restore(lines []domain.CartLine) {
	l.lines = make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		l.lines = append(l.lines, line)
	}
}

func (l *Ledger) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *Ledger) Empty() bool { return len(l.lines) == 0 }

func (l *Ledger) SubtotalInclCents() int64 {
	var total int64
	for _, line := range l.lines {
		total += line.UnitPriceInclCents * int64(line.Quantity)
	}
	return total
}

func (l *Ledger) TotalQuantity() int {
	var qty int
	for _, line := range l.lines {
		qty += line.Quantity
	}
	return qty
}

// TaxSplit aggregates the incl/excl gap per tax rate, in cents.
func (l *Ledger) TaxSplit() map[float64]int64 {
	split := make(map[float64]int64, 2)
	for _, line := range l.lines {
		split[line.TaxRate] += (line.UnitPriceInclCents - line.UnitPriceExclCents) * int64(line.Quantity)
	}
	return split
}
