package domain

import "time"

// Money is carried as integer cents throughout. Backend payloads use euro
// floats; conversion happens at the backend client boundary only.

type Product struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	ImageRef  string `json:"image_ref,omitempty"`
}

// Combination is a sellable variant of a product. AttributeID 0 means the
// product has no variants.
type Combination struct {
	ProductID      int64   `json:"product_id"`
	AttributeID    int64   `json:"attribute_id"`
	Name           string  `json:"combination_name,omitempty"`
	Reference      string  `json:"reference,omitempty"`
	EAN13          string  `json:"ean13"`
	PriceInclCents int64   `json:"price_incl_cents"`
	TaxRate        float64 `json:"tax_rate"`
}

type StockRecord struct {
	ShopID            int64            `json:"shop_id"`
	StockRecordID     int64            `json:"stock_record_id"`
	QuantityAvailable int              `json:"quantity_available"`
	ControlledUnits   []ControlledUnit `json:"controlled_units,omitempty"`
}

// ControlledUnit is one physically tagged unit. Active false means the tag
// was already sold or transferred; units are never deleted server-side.
type ControlledUnit struct {
	ControlID int64 `json:"control_id"`
	Active    bool  `json:"active"`
}

type CartLine struct {
	ProductID          int64   `json:"product_id"`
	AttributeID        int64   `json:"attribute_id"`
	StockRecordID      int64   `json:"stock_record_id"`
	ShopID             int64   `json:"shop_id"`
	ControlID          *int64  `json:"control_id,omitempty"`
	Quantity           int     `json:"quantity"`
	UnitPriceInclCents int64   `json:"unit_price_incl_cents"`
	UnitPriceExclCents int64   `json:"unit_price_excl_cents"`
	TaxRate            float64 `json:"tax_rate"`
	Name               string  `json:"name,omitempty"`
	Reference          string  `json:"reference,omitempty"`
}

// LineKey identifies a cart line. Controlled units carry their control id in
// the key so two tags of the same combination stay on separate lines.
type LineKey struct {
	ProductID     int64 `json:"product_id"`
	AttributeID   int64 `json:"attribute_id"`
	StockRecordID int64 `json:"stock_record_id"`
	ControlID     int64 `json:"control_id"`
}

func (l CartLine) Key() LineKey {
	key := LineKey{
		ProductID:     l.ProductID,
		AttributeID:   l.AttributeID,
		StockRecordID: l.StockRecordID,
	}
	if l.ControlID != nil {
		key.ControlID = *l.ControlID
	}
	return key
}

// Voucher mirrors a backend cart rule. Exactly one of ReductionPercent and
// ReductionCents is non-zero. Nil CustomerID / ShopID means unrestricted.
type Voucher struct {
	Code             string  `json:"code"`
	Active           bool    `json:"active"`
	CustomerID       *int64  `json:"customer_id,omitempty"`
	ShopID           *int64  `json:"shop_id,omitempty"`
	ReductionPercent float64 `json:"reduction_percent"`
	ReductionCents   int64   `json:"reduction_cents"`
}

// AppliedDiscount is the runtime record of a voucher consumed against one
// checkout. Consumed and leftover are filled by the discount engine.
type AppliedDiscount struct {
	Code             string  `json:"code"`
	ReductionPercent float64 `json:"reduction_percent"`
	ReductionCents   int64   `json:"reduction_cents"`
	ConsumedCents    int64   `json:"consumed_cents"`
	LeftoverCents    int64   `json:"leftover_cents"`
}

type TenderMethod string

const (
	TenderCash   TenderMethod = "cash"
	TenderCard   TenderMethod = "card"
	TenderWallet TenderMethod = "wallet"
)

func IsSupportedTender(method TenderMethod) bool {
	switch method {
	case TenderCash, TenderCard, TenderWallet:
		return true
	default:
		return false
	}
}

type Tender struct {
	Method      TenderMethod `json:"method"`
	AmountCents int64        `json:"amount_cents"`
}

// Order is the immutable result of a finalized sale.
type Order struct {
	OrderID          string            `json:"order_id"`
	ServerOrderID    int64             `json:"server_order_id,omitempty"`
	ShopID           int64             `json:"shop_id"`
	EmployeeID       int64             `json:"employee_id"`
	CustomerID       *int64            `json:"customer_id,omitempty"`
	IdempotencyToken string            `json:"idempotency_token"`
	Lines            []CartLine        `json:"lines"`
	Discounts        []AppliedDiscount `json:"discounts,omitempty"`
	Payments         []Tender          `json:"payments,omitempty"`
	SubtotalCents    int64             `json:"subtotal_cents"`
	PayableCents     int64             `json:"payable_cents"`
	ChangeCents      int64             `json:"change_cents"`
	CreatedAt        time.Time         `json:"created_at"`
}

// CartSnapshot is the persisted per-shop cart, restored on reload and cleared
// on commit or explicit clear.
type CartSnapshot struct {
	ShopID     int64      `json:"shop_id"`
	Lines      []CartLine `json:"lines"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	AddressID  *int64     `json:"address_id,omitempty"`
	SavedAt    time.Time  `json:"saved_at"`
}

// ProductSearchRow is one flat row of a backend product_search response,
// before the catalog index groups it.
type ProductSearchRow struct {
	Product     Product     `json:"product"`
	Combination Combination `json:"combination"`
	Stock       StockRecord `json:"stock"`
}

// VoucherDescriptor is the create_cart_rule payload used when reissuing a
// leftover as a fresh voucher.
type VoucherDescriptor struct {
	Name           string `json:"name"`
	ReductionCents int64  `json:"reduction_cents"`
	CustomerID     *int64 `json:"customer_id,omitempty"`
	ShopID         *int64 `json:"shop_id,omitempty"`
}

// JournalEntry records one submission attempt on the local till.
type JournalEntry struct {
	ID               string    `json:"id"`
	ShopID           int64     `json:"shop_id"`
	IdempotencyToken string    `json:"idempotency_token"`
	Status           string    `json:"status"`
	ServerOrderID    int64     `json:"server_order_id,omitempty"`
	PayableCents     int64     `json:"payable_cents"`
	Detail           string    `json:"detail,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	JournalStatusSubmitting = "submitting"
	JournalStatusSettled    = "settled"
	JournalStatusFailed     = "failed"
)

// DefaultTaxRate is applied when the catalog does not specify a rate.
const DefaultTaxRate = 0.21
