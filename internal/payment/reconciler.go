package payment

import "tiendapos/client/internal/domain"

// Reconciler accumulates tender amounts against the payable total. It holds
// one amount per method; toggling a tender off clears its amount.
type Reconciler struct {
	amounts map[domain.TenderMethod]int64
	order   []domain.TenderMethod
}

func NewReconciler() *Reconciler {
	return &Reconciler{amounts: make(map[domain.TenderMethod]int64, 3)}
}

// SetAmount records the entered amount for a tender. Negative amounts are
// rejected; zero keeps the tender toggled on with nothing entered yet.
func (r *Reconciler) SetAmount(method domain.TenderMethod, cents int64) error {
	if !domain.IsSupportedTender(method) || cents < 0 {
		return domain.ErrInvalidInput
	}
	r.track(method)
	r.amounts[method] = cents
	return nil
}

// Toggle enables or disables a tender. Enabling card or wallet auto-fills the
// remaining uncovered amount as a convenience default (clamped at zero); the
// value stays editable afterwards. Disabling clears the amount.
func (r *Reconciler) Toggle(method domain.TenderMethod, on bool, payableCents int64) error {
	if !domain.IsSupportedTender(method) {
		return domain.ErrInvalidInput
	}
	if !on {
		delete(r.amounts, method)
		for i, m := range r.order {
			if m == method {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		return nil
	}

	r.track(method)
	if method == domain.TenderCard || method == domain.TenderWallet {
		uncovered := payableCents - r.enteredExcept(method)
		if uncovered < 0 {
			uncovered = 0
		}
		r.amounts[method] = uncovered
	} else if _, ok := r.amounts[method]; !ok {
		r.amounts[method] = 0
	}
	return nil
}

func (r *Reconciler) track(method domain.TenderMethod) {
	if _, ok := r.amounts[method]; ok {
		return
	}
	r.order = append(r.order, method)
}

func (r *Reconciler) enteredExcept(skip domain.TenderMethod) int64 {
	var total int64
	for method, cents := range r.amounts {
		if method == skip {
			continue
		}
		total += cents
	}
	return total
}

func (r *Reconciler) EnteredTotalCents() int64 {
	var total int64
	for _, cents := range r.amounts {
		total += cents
	}
	return total
}

// ChangeCents may be negative while the sale is not yet covered.
func (r *Reconciler) ChangeCents(payableCents int64) int64 {
	return r.EnteredTotalCents() - payableCents
}

func (r *Reconciler) CanFinalize(payableCents int64) bool {
	return r.ChangeCents(payableCents) >= 0
}

// Tenders returns the entered tenders in the order they were first enabled,
// skipping zero amounts.
func (r *Reconciler) Tenders() []domain.Tender {
	out := make([]domain.Tender, 0, len(r.order))
	for _, method := range r.order {
		cents, ok := r.amounts[method]
		if !ok || cents == 0 {
			continue
		}
		out = append(out, domain.Tender{Method: method, AmountCents: cents})
	}
	return out
}

func (r *Reconciler) Reset() {
	r.amounts = make(map[domain.TenderMethod]int64, 3)
	r.order = r.order[:0]
}
