package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"tiendapos/client/internal/domain"
)

// Client talks JSON over HTTP to the retail backend. Every call carries the
// bearer token; any 401 surfaces domain.ErrSessionExpired and is never
// retried here.
type Client struct {
	baseURL        string
	token          string
	defaultGroupID int64
	shopID         int64
	http           *http.Client
}

func New(baseURL string, token string, shopID int64, defaultGroupID int64) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		defaultGroupID: defaultGroupID,
		shopID:         shopID,
		http:           &http.Client{Timeout: 15 * time.Second},
	}
}

// tokenExpired inspects the bearer token's exp claim without verifying the
// signature (the backend holds the key). A token already past its expiry
// produces ErrSessionExpired without a doomed round trip.
func (c *Client) tokenExpired() bool {
	parser := jwtlib.NewParser()
	claims := jwtlib.MapClaims{}
	if _, _, err := parser.ParseUnverified(c.token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body any, headers map[string]string) (*http.Response, error) {
	if c.tokenExpired() {
		return nil, domain.ErrSessionExpired
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, domain.ErrSessionExpired
	}
	return resp, nil
}

// Wire DTOs. The backend speaks euro floats; the domain speaks cents.

type searchRow struct {
	ProductID       int64   `json:"id_product"`
	ProductName     string  `json:"product_name"`
	ImageRef        string  `json:"image_ref"`
	AttributeID     int64   `json:"id_product_attribute"`
	CombinationName string  `json:"combination_name"`
	Reference       string  `json:"reference"`
	EAN13           string  `json:"ean13"`
	PriceInclTax    float64 `json:"price_incl_tax"`
	TaxRate         float64 `json:"tax_rate"`
	ShopID          int64   `json:"id_shop"`
	StockID         int64   `json:"id_stock_available"`
	Quantity        int     `json:"quantity"`
	ControlUnits    []struct {
		ControlID int64 `json:"id_control"`
		Active    int   `json:"active"`
	} `json:"control_units"`
}

func centsFromEuro(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// SearchProducts calls product_search with the configured default group. Raw
// rows come back flat; the catalog index does the grouping.
func (c *Client) SearchProducts(ctx context.Context, term string) ([]domain.ProductSearchRow, error) {
	query := url.Values{}
	query.Set("search_term", term)
	query.Set("id_default_group", strconv.FormatInt(c.defaultGroupID, 10))

	resp, err := c.do(ctx, http.MethodGet, "/product_search", query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product_search: unexpected status %d", resp.StatusCode)
	}

	var rows []searchRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}

	out := make([]domain.ProductSearchRow, 0, len(rows))
	for _, row := range rows {
		units := make([]domain.ControlledUnit, 0, len(row.ControlUnits))
		for _, u := range row.ControlUnits {
			units = append(units, domain.ControlledUnit{ControlID: u.ControlID, Active: u.Active == 1})
		}
		out = append(out, domain.ProductSearchRow{
			Product: domain.Product{
				ProductID: row.ProductID,
				Name:      row.ProductName,
				ImageRef:  row.ImageRef,
			},
			Combination: domain.Combination{
				ProductID:      row.ProductID,
				AttributeID:    row.AttributeID,
				Name:           row.CombinationName,
				Reference:      row.Reference,
				EAN13:          row.EAN13,
				PriceInclCents: centsFromEuro(row.PriceInclTax),
				TaxRate:        row.TaxRate,
			},
			Stock: domain.StockRecord{
				ShopID:            row.ShopID,
				StockRecordID:     row.StockID,
				QuantityAvailable: row.Quantity,
				ControlledUnits:   units,
			},
		})
	}
	return out, nil
}

// ControlUnits calls get_controll_stock_filtered for the configured shop. A
// 404 means the combination has no tracked units, not an error.
func (c *Client) ControlUnits(ctx context.Context, ean13 string) ([]domain.ControlledUnit, error) {
	query := url.Values{}
	query.Set("ean13", ean13)
	query.Set("id_shop", strconv.FormatInt(c.shopID, 10))

	resp, err := c.do(ctx, http.MethodGet, "/get_controll_stock_filtered", query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get_controll_stock_filtered: unexpected status %d", resp.StatusCode)
	}

	var rows []struct {
		ControlID int64 `json:"id_control"`
		Active    int   `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}

	units := make([]domain.ControlledUnit, 0, len(rows))
	for _, row := range rows {
		units = append(units, domain.ControlledUnit{ControlID: row.ControlID, Active: row.Active == 1})
	}
	return units, nil
}

// VoucherByCode calls get_cart_rule. A 404 returns nil without error; the
// resolver turns that into its voucher-inactive outcome.
func (c *Client) VoucherByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	query := url.Values{}
	query.Set("code", code)

	resp, err := c.do(ctx, http.MethodGet, "/get_cart_rule", query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get_cart_rule: unexpected status %d", resp.StatusCode)
	}

	var row struct {
		Code             string  `json:"code"`
		Active           int     `json:"active"`
		CustomerID       int64   `json:"id_customer"`
		ShopID           int64   `json:"id_shop"`
		ReductionPercent float64 `json:"reduction_percent"`
		ReductionAmount  float64 `json:"reduction_amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return nil, err
	}

	voucher := &domain.Voucher{
		Code:             row.Code,
		Active:           row.Active == 1,
		ReductionPercent: row.ReductionPercent,
		ReductionCents:   centsFromEuro(row.ReductionAmount),
	}
	if row.CustomerID > 0 {
		id := row.CustomerID
		voucher.CustomerID = &id
	}
	if row.ShopID > 0 {
		id := row.ShopID
		voucher.ShopID = &id
	}
	return voucher, nil
}

// CreateVoucher calls create_cart_rule, used to reissue a leftover amount as
// a fresh voucher at sale close.
func (c *Client) CreateVoucher(ctx context.Context, descriptor domain.VoucherDescriptor) error {
	payload := map[string]any{
		"name":             descriptor.Name,
		"reduction_amount": float64(descriptor.ReductionCents) / 100,
	}
	if descriptor.CustomerID != nil {
		payload["id_customer"] = *descriptor.CustomerID
	}
	if descriptor.ShopID != nil {
		payload["id_shop"] = *descriptor.ShopID
	}

	resp, err := c.do(ctx, http.MethodPost, "/create_cart_rule", nil, payload, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create_cart_rule: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type orderLine struct {
	ProductID     int64   `json:"id_product"`
	AttributeID   int64   `json:"id_product_attribute"`
	StockRecordID int64   `json:"id_stock_available"`
	ControlID     *int64  `json:"id_control,omitempty"`
	Quantity      int     `json:"quantity"`
	PriceInclTax  float64 `json:"price_incl_tax"`
	PriceExclTax  float64 `json:"price_excl_tax"`
	TaxRate       float64 `json:"tax_rate"`
}

type orderPayload struct {
	ShopID     int64       `json:"id_shop"`
	EmployeeID int64       `json:"id_employee"`
	CustomerID *int64      `json:"id_customer,omitempty"`
	Lines      []orderLine `json:"lines"`
	Discounts  []struct {
		Code          string  `json:"code"`
		ConsumedEuros float64 `json:"consumed"`
	} `json:"discounts,omitempty"`
	Payments []struct {
		Method string  `json:"method"`
		Amount float64 `json:"amount"`
	} `json:"payments,omitempty"`
	Total  float64 `json:"total"`
	Change float64 `json:"change"`
}

// CreateOrder submits the finalized order. The idempotency token rides in a
// header so a manual retry of a failed submission cannot create a second
// order server-side.
func (c *Client) CreateOrder(ctx context.Context, order domain.Order) (int64, error) {
	payload := orderPayload{
		ShopID:     order.ShopID,
		EmployeeID: order.EmployeeID,
		CustomerID: order.CustomerID,
		Total:      float64(order.PayableCents) / 100,
		Change:     float64(order.ChangeCents) / 100,
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLine{
			ProductID:     line.ProductID,
			AttributeID:   line.AttributeID,
			StockRecordID: line.StockRecordID,
			ControlID:     line.ControlID,
			Quantity:      line.Quantity,
			PriceInclTax:  float64(line.UnitPriceInclCents) / 100,
			PriceExclTax:  float64(line.UnitPriceExclCents) / 100,
			TaxRate:       line.TaxRate,
		})
	}
	for _, d := range order.Discounts {
		payload.Discounts = append(payload.Discounts, struct {
			Code          string  `json:"code"`
			ConsumedEuros float64 `json:"consumed"`
		}{Code: d.Code, ConsumedEuros: float64(d.ConsumedCents) / 100})
	}
	for _, p := range order.Payments {
		payload.Payments = append(payload.Payments, struct {
			Method string  `json:"method"`
			Amount float64 `json:"amount"`
		}{Method: string(p.Method), Amount: float64(p.AmountCents) / 100})
	}

	resp, err := c.do(ctx, http.MethodPost, "/create_order", nil, payload, map[string]string{
		"X-Idempotency-Key": order.IdempotencyToken,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("create_order: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		OrderID int64 `json:"id_order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.OrderID, nil
}
