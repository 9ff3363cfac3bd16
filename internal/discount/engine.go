package discount

import (
	"math"

	"tiendapos/client/internal/domain"
)

// Apply simulates the consumption of the ordered discounts against the cart
// subtotal. It never mutates its input: the same call at preview time and at
// commit time yields identical results for identical inputs. Later discounts
// act on the already-reduced remainder, not on the original subtotal.
func Apply(subtotalCents int64, discounts []domain.AppliedDiscount) ([]domain.AppliedDiscount, int64) {
	remaining := subtotalCents
	if remaining < 0 {
		remaining = 0
	}

	applied := make([]domain.AppliedDiscount, len(discounts))
	for i, d := range discounts {
		out := d
		out.ConsumedCents = 0
		out.LeftoverCents = 0

		if d.ReductionPercent > 0 {
			out.ConsumedCents = int64(math.Round(float64(remaining) * d.ReductionPercent / 100))
		} else {
			out.ConsumedCents = d.ReductionCents
			if out.ConsumedCents > remaining {
				out.ConsumedCents = remaining
			}
			out.LeftoverCents = d.ReductionCents - out.ConsumedCents
		}

		remaining -= out.ConsumedCents
		if remaining < 0 {
			remaining = 0
		}
		applied[i] = out
	}

	return applied, remaining
}

// Propose builds the AppliedDiscount for a freshly scanned voucher, with its
// consumption previewed against the current subtotal alone. A fixed-amount
// voucher is clamped so it can never push the payable total negative by
// itself.
func Propose(v domain.Voucher, subtotalCents int64) domain.AppliedDiscount {
	proposal := domain.AppliedDiscount{
		Code:             v.Code,
		ReductionPercent: v.ReductionPercent,
		ReductionCents:   v.ReductionCents,
	}
	applied, _ := Apply(subtotalCents, []domain.AppliedDiscount{proposal})
	return applied[0]
}

// TotalLeftoverCents sums the unconsumed amounts to reissue at sale close.
func TotalLeftoverCents(discounts []domain.AppliedDiscount) int64 {
	var total int64
	for _, d := range discounts {
		total += d.LeftoverCents
	}
	return total
}
