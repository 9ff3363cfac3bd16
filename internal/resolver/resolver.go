package resolver

import (
	"context"
	"fmt"
	"strings"

	"tiendapos/client/internal/catalog"
	"tiendapos/client/internal/discount"
	"tiendapos/client/internal/domain"
)

// Source is the backend surface the resolver needs. The HTTP client
// implements it; tests use in-memory fakes.
type Source interface {
	SearchProducts(ctx context.Context, term string) ([]domain.ProductSearchRow, error)
	ControlUnits(ctx context.Context, ean13 string) ([]domain.ControlledUnit, error)
	VoucherByCode(ctx context.Context, code string) (*domain.Voucher, error)
}

type Kind int

const (
	// KindAutoLine resolved to a single sellable unit; gate and add next.
	KindAutoLine Kind = iota
	// KindCandidates needs manual selection; never auto-added.
	KindCandidates
	// KindVoucher carries a proposed discount ready to apply.
	KindVoucher
	// KindConfirmControlUnit matched an already-sold tag; the operator must
	// explicitly confirm before it may be sold again.
	KindConfirmControlUnit
)

// Resolution is the tagged outcome of one scan. Exactly one payload field is
// populated for its kind.
type Resolution struct {
	Kind       Kind
	Line       *LineCandidate
	Candidates []catalog.Match
	Voucher    *domain.AppliedDiscount
}

// LineCandidate is a fully resolved unit proposal. ControlID is set only for
// controlled-unit scans, where quantity is fixed at one.
type LineCandidate struct {
	Match     catalog.Match
	ControlID *int64
}

// Resolver parses scanned or typed input and resolves it against the catalog
// and the control-stock directory for one shop.
type Resolver struct {
	source      Source
	shopID      int64
	forAllShops bool
}

func New(source Source, shopID int64, forAllShops bool) *Resolver {
	return &Resolver{source: source, shopID: shopID, forAllShops: forAllShops}
}

// Resolve recognizes, in priority order: "#<code>" voucher redemption, a bare
// EAN13, an EAN13 followed by a control id, and finally free text. The
// subtotal is needed to clamp a fixed-amount voucher proposal; customerID is
// the currently selected customer (nil when anonymous).
func (r *Resolver) Resolve(ctx context.Context, raw string, subtotalCents int64, customerID *int64) (Resolution, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return Resolution{}, domain.ErrInvalidInput
	}

	if strings.HasPrefix(input, "#") {
		return r.resolveVoucher(ctx, strings.TrimPrefix(input, "#"), subtotalCents, customerID)
	}

	if isDigits(input) {
		switch {
		case len(input) == 13:
			return r.resolvePlainEAN(ctx, input)
		case len(input) > 13:
			return r.resolveControlledUnit(ctx, input[:13], input[13:])
		}
	}

	return r.resolveFreeText(ctx, input)
}

func (r *Resolver) resolveVoucher(ctx context.Context, code string, subtotalCents int64, customerID *int64) (Resolution, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Resolution{}, domain.ErrInvalidInput
	}

	voucher, err := r.source.VoucherByCode(ctx, code)
	if err != nil {
		return Resolution{}, err
	}
	if voucher == nil {
		return Resolution{}, fmt.Errorf("%w: code %s", domain.ErrVoucherInactive, code)
	}
	if !voucher.Active {
		return Resolution{}, fmt.Errorf("%w: code %s", domain.ErrVoucherInactive, code)
	}
	if voucher.CustomerID != nil && customerID != nil && *voucher.CustomerID != *customerID {
		return Resolution{}, domain.ErrVoucherWrongCustomer
	}
	if voucher.ShopID != nil && !r.forAllShops && *voucher.ShopID != r.shopID {
		return Resolution{}, domain.ErrVoucherWrongShop
	}

	proposed := discount.Propose(*voucher, subtotalCents)
	return Resolution{Kind: KindVoucher, Voucher: &proposed}, nil
}

func (r *Resolver) resolvePlainEAN(ctx context.Context, ean13 string) (Resolution, error) {
	rows, err := r.source.SearchProducts(ctx, ean13)
	if err != nil {
		return Resolution{}, err
	}

	matches := catalog.BuildIndex(rows).ByEAN(ean13, r.shopID, r.forAllShops)
	switch len(matches) {
	case 0:
		return Resolution{}, fmt.Errorf("%w: ean13 %s", domain.ErrProductNotFound, ean13)
	case 1:
		return Resolution{Kind: KindAutoLine, Line: &LineCandidate{Match: matches[0]}}, nil
	default:
		return Resolution{Kind: KindCandidates, Candidates: matches}, nil
	}
}

// resolveControlledUnit handles <ean13><controlId> scans. The split after 13
// digits is not syntactically unique, so the trailing digits are validated
// against the control-stock directory by exact numeric match instead of
// trusting the regex position.
func (r *Resolver) resolveControlledUnit(ctx context.Context, ean13 string, rest string) (Resolution, error) {
	rows, err := r.source.SearchProducts(ctx, ean13)
	if err != nil {
		return Resolution{}, err
	}
	matches := catalog.BuildIndex(rows).ByEAN(ean13, r.shopID, r.forAllShops)
	if len(matches) == 0 {
		return Resolution{}, fmt.Errorf("%w: ean13 %s", domain.ErrProductNotFound, ean13)
	}

	units, err := r.source.ControlUnits(ctx, ean13)
	if err != nil {
		return Resolution{}, err
	}

	unit, ok := catalog.NewDirectory(ean13, units).FindByDigits(rest)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: ean13 %s id %s", domain.ErrControlUnitNotFound, ean13, rest)
	}

	id := unit.ControlID
	line := &LineCandidate{Match: matches[0], ControlID: &id}
	if !unit.Active {
		return Resolution{Kind: KindConfirmControlUnit, Line: line}, nil
	}
	return Resolution{Kind: KindAutoLine, Line: line}, nil
}

func (r *Resolver) resolveFreeText(ctx context.Context, term string) (Resolution, error) {
	rows, err := r.source.SearchProducts(ctx, term)
	if err != nil {
		return Resolution{}, err
	}

	candidates := catalog.BuildIndex(rows).All(r.shopID, r.forAllShops)
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w: %q", domain.ErrProductNotFound, term)
	}
	return Resolution{Kind: KindCandidates, Candidates: candidates}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
