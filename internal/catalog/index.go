package catalog

import (
	"sort"
	"strconv"
	"strings"

	"tiendapos/client/internal/domain"
)

// Match is one sellable candidate: a combination together with its product
// and the stock record for a single shop.
type Match struct {
	Product     domain.Product     `json:"product"`
	Combination domain.Combination `json:"combination"`
	Stock       domain.StockRecord `json:"stock"`
}

// Index groups flat product_search rows into Product -> Combination -> Stock
// records. It is rebuilt per search response; it never outlives one lookup.
type Index struct {
	products map[int64]domain.Product
	matches  []Match
}

type comboKey struct {
	productID   int64
	attributeID int64
	shopID      int64
}

// BuildIndex normalizes raw search rows. Rows with a missing product id are
// dropped; duplicate combination/shop rows keep the first stock record seen.
func BuildIndex(rows []domain.ProductSearchRow) *Index {
	ix := &Index{products: make(map[int64]domain.Product, len(rows))}

	seen := make(map[comboKey]struct{}, len(rows))
	for _, row := range rows {
		if row.Product.ProductID == 0 {
			continue
		}
		if _, ok := ix.products[row.Product.ProductID]; !ok {
			ix.products[row.Product.ProductID] = row.Product
		}

		combo := row.Combination
		combo.ProductID = row.Product.ProductID
		if combo.TaxRate <= 0 {
			combo.TaxRate = domain.DefaultTaxRate
		}

		key := comboKey{combo.ProductID, combo.AttributeID, row.Stock.ShopID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		ix.matches = append(ix.matches, Match{
			Product:     ix.products[combo.ProductID],
			Combination: combo,
			Stock:       row.Stock,
		})
	}

	sort.SliceStable(ix.matches, func(i, j int) bool {
		a, b := ix.matches[i], ix.matches[j]
		if a.Combination.ProductID != b.Combination.ProductID {
			return a.Combination.ProductID < b.Combination.ProductID
		}
		return a.Combination.AttributeID < b.Combination.AttributeID
	})

	return ix
}

// ByEAN returns the matches whose combination carries the exact EAN13,
// filtered to shopID unless allShops is set.
func (ix *Index) ByEAN(ean13 string, shopID int64, allShops bool) []Match {
	out := make([]Match, 0, 2)
	for _, m := range ix.matches {
		if m.Combination.EAN13 != ean13 {
			continue
		}
		if !allShops && m.Stock.ShopID != shopID {
			continue
		}
		out = append(out, m)
	}
	return out
}

// All returns every match in the index, filtered to shopID unless allShops
// is set. Used for free-text candidate sets.
func (ix *Index) All(shopID int64, allShops bool) []Match {
	out := make([]Match, 0, len(ix.matches))
	for _, m := range ix.matches {
		if !allShops && m.Stock.ShopID != shopID {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (ix *Index) Len() int { return len(ix.matches) }

// Directory holds the controlled units known for one EAN13 in one shop, as
// returned by the control-stock lookup. The server remains authoritative;
// directory contents are advisory between read and commit.
type Directory struct {
	ean13 string
	units []domain.ControlledUnit
}

func NewDirectory(ean13 string, units []domain.ControlledUnit) *Directory {
	return &Directory{ean13: ean13, units: units}
}

// FindByDigits resolves the trailing digits of an <ean13><controlId> scan
// against the directory. The split point of the scan is not syntactically
// unique, so candidates are matched by exact numeric value rather than by
// regex position.
func (d *Directory) FindByDigits(rest string) (domain.ControlledUnit, bool) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return domain.ControlledUnit{}, false
	}
	wanted, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return domain.ControlledUnit{}, false
	}
	for _, unit := range d.units {
		if unit.ControlID == wanted {
			return unit, true
		}
	}
	return domain.ControlledUnit{}, false
}

func (d *Directory) Units() []domain.ControlledUnit { return d.units }
