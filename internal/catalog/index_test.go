package catalog

import (
	"testing"

	"tiendapos/client/internal/domain"
)

func row(productID, attributeID, shopID, stockID int64, ean string, qty int) domain.ProductSearchRow {
	return domain.ProductSearchRow{
		Product:     domain.Product{ProductID: productID, Name: "p"},
		Combination: domain.Combination{ProductID: productID, AttributeID: attributeID, EAN13: ean, PriceInclCents: 1210},
		Stock:       domain.StockRecord{ShopID: shopID, StockRecordID: stockID, QuantityAvailable: qty},
	}
}

func TestBuildIndexGroupsAndDeduplicates(t *testing.T) {
	ix := BuildIndex([]domain.ProductSearchRow{
		row(1, 0, 1, 10, "8400000000017", 4),
		row(1, 0, 1, 10, "8400000000017", 4), // duplicate row from backend
		row(1, 2, 1, 11, "8400000000024", 1),
		row(2, 0, 2, 20, "8400000000017", 9),
		{}, // missing product id dropped
	})

	if ix.Len() != 3 {
		t.Fatalf("expected 3 matches after grouping, got %d", ix.Len())
	}
}

func TestBuildIndexAppliesDefaultTaxRate(t *testing.T) {
	ix := BuildIndex([]domain.ProductSearchRow{row(1, 0, 1, 10, "8400000000017", 4)})
	matches := ix.ByEAN("8400000000017", 1, false)
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	if matches[0].Combination.TaxRate != domain.DefaultTaxRate {
		t.Fatalf("expected default tax rate, got %v", matches[0].Combination.TaxRate)
	}
}

func TestByEANFiltersShopUnlessAllShops(t *testing.T) {
	ix := BuildIndex([]domain.ProductSearchRow{
		row(1, 0, 1, 10, "8400000000017", 4),
		row(2, 0, 2, 20, "8400000000017", 9),
	})

	if got := len(ix.ByEAN("8400000000017", 1, false)); got != 1 {
		t.Fatalf("expected shop-filtered lookup to return 1, got %d", got)
	}
	if got := len(ix.ByEAN("8400000000017", 1, true)); got != 2 {
		t.Fatalf("expected all-shops lookup to return 2, got %d", got)
	}
}

func TestVariantAndPlainCombinationsResolveAlike(t *testing.T) {
	ix := BuildIndex([]domain.ProductSearchRow{
		row(1, 0, 1, 10, "8400000000017", 4),
		row(3, 7, 1, 30, "8400000000031", 2),
	})

	plain := ix.ByEAN("8400000000017", 1, false)
	variant := ix.ByEAN("8400000000031", 1, false)
	if len(plain) != 1 || len(variant) != 1 {
		t.Fatalf("expected one match each, got %d and %d", len(plain), len(variant))
	}
	if plain[0].Combination.AttributeID != 0 || variant[0].Combination.AttributeID != 7 {
		t.Fatalf("key shape mismatch: %+v %+v", plain[0].Combination, variant[0].Combination)
	}
}

func TestDirectoryFindByDigits(t *testing.T) {
	dir := NewDirectory("8400000000017", []domain.ControlledUnit{
		{ControlID: 4, Active: true},
		{ControlID: 41, Active: false},
		{ControlID: 412, Active: true},
	})

	cases := []struct {
		rest   string
		wantID int64
		found  bool
	}{
		{"4", 4, true},
		{"41", 41, true},
		{"412", 412, true},
		{"04", 4, true}, // leading zero, same numeric id
		{"9", 0, false},
		{"", 0, false},
		{"4x", 0, false},
	}
	for _, tc := range cases {
		unit, ok := dir.FindByDigits(tc.rest)
		if ok != tc.found {
			t.Fatalf("rest %q: found=%v want %v", tc.rest, ok, tc.found)
		}
		if ok && unit.ControlID != tc.wantID {
			t.Fatalf("rest %q: got id %d want %d", tc.rest, unit.ControlID, tc.wantID)
		}
	}
}
