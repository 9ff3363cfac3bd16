package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"tiendapos/client/internal/domain"
	"tiendapos/client/internal/journal"
	"tiendapos/client/internal/session"
)

// fakeBackend is the in-memory stand-in for the retail server.
type fakeBackend struct {
	rows     []domain.ProductSearchRow
	units    []domain.ControlledUnit
	vouchers map[string]*domain.Voucher

	orders        []domain.Order
	issued        []domain.VoucherDescriptor
	serverOrderID int64
	orderErr      error
	voucherErr    error

	// onCreateOrder runs while the submission is in flight.
	onCreateOrder func()
}

func (f *fakeBackend) SearchProducts(_ context.Context, _ string) ([]domain.ProductSearchRow, error) {
	return f.rows, nil
}

func (f *fakeBackend) ControlUnits(_ context.Context, _ string) ([]domain.ControlledUnit, error) {
	return f.units, nil
}

func (f *fakeBackend) VoucherByCode(_ context.Context, code string) (*domain.Voucher, error) {
	return f.vouchers[code], nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, order domain.Order) (int64, error) {
	if f.onCreateOrder != nil {
		f.onCreateOrder()
	}
	if f.orderErr != nil {
		return 0, f.orderErr
	}
	f.orders = append(f.orders, order)
	if f.serverOrderID == 0 {
		f.serverOrderID = 1000
	}
	return f.serverOrderID, nil
}

func (f *fakeBackend) CreateVoucher(_ context.Context, descriptor domain.VoucherDescriptor) error {
	if f.voucherErr != nil {
		return f.voucherErr
	}
	f.issued = append(f.issued, descriptor)
	return nil
}

func stockedRow(qty int) domain.ProductSearchRow {
	return domain.ProductSearchRow{
		Product:     domain.Product{ProductID: 1, Name: "cava"},
		Combination: domain.Combination{ProductID: 1, EAN13: "8400000000017", PriceInclCents: 1210, TaxRate: 0.21},
		Stock:       domain.StockRecord{ShopID: 1, StockRecordID: 10, QuantityAvailable: qty},
	}
}

func newTestSession(t *testing.T, backend *fakeBackend, cfg Config) (*Session, *session.MemoryStore, *journal.MemoryJournal) {
	t.Helper()
	if cfg.ShopID == 0 {
		cfg.ShopID = 1
	}
	if cfg.EmployeeID == 0 {
		cfg.EmployeeID = 5
	}
	store := session.NewMemoryStore()
	jrnl := journal.NewMemoryJournal()
	return NewSession(cfg, backend, store, jrnl), store, jrnl
}

func TestScanAddsAndMergesLine(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(4)}}
	sess, store, _ := newTestSession(t, backend, Config{})

	res, err := sess.Scan(ctx, "8400000000017")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeLineAdded {
		t.Fatalf("outcome = %s, want line_added", res.Outcome)
	}

	res, err = sess.Scan(ctx, "8400000000017")
	if err != nil {
		t.Fatal(err)
	}
	if res.Line.Quantity != 2 {
		t.Fatalf("rescan quantity = %d, want 2", res.Line.Quantity)
	}
	if res.Totals.SubtotalCents != 2420 {
		t.Fatalf("subtotal = %d, want 2420", res.Totals.SubtotalCents)
	}

	snapshot, ok, _ := store.Load(ctx, 1)
	if !ok || len(snapshot.Lines) != 1 || snapshot.Lines[0].Quantity != 2 {
		t.Fatalf("snapshot after scan: ok=%v %+v", ok, snapshot)
	}
}

func TestScanOutOfStockRejectedByDefault(t *testing.T) {
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(0)}}
	sess, _, _ := newTestSession(t, backend, Config{})

	if _, err := sess.Scan(context.Background(), "8400000000017"); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("err = %v, want ErrOutOfStock", err)
	}
	if len(sess.Lines()) != 0 {
		t.Fatal("rejected scan must not touch the ledger")
	}
}

func TestScanOutOfStockConfirmFlow(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(0)}}
	sess, _, _ := newTestSession(t, backend, Config{AllowOutOfStockSales: true})

	res, err := sess.Scan(ctx, "8400000000017")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeConfirmRequired || res.ConfirmReason != "out_of_stock" {
		t.Fatalf("outcome = %s/%s", res.Outcome, res.ConfirmReason)
	}
	if len(sess.Lines()) != 0 {
		t.Fatal("cart must stay untouched until the confirm")
	}

	res, err = sess.ConfirmPending(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeLineAdded || res.Line.Quantity != 1 {
		t.Fatalf("confirmed force-add: %+v", res.Line)
	}

	if _, err := sess.ConfirmPending(ctx, ""); !errors.Is(err, ErrNothingPending) {
		t.Fatalf("double confirm: err = %v, want ErrNothingPending", err)
	}
}

func TestRejectPendingLeavesCartUntouched(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(0)}}
	sess, _, _ := newTestSession(t, backend, Config{AllowOutOfStockSales: true})

	if _, err := sess.Scan(ctx, "8400000000017"); err != nil {
		t.Fatal(err)
	}
	sess.RejectPending()
	if len(sess.Lines()) != 0 {
		t.Fatal("rejected confirm must leave the cart empty")
	}
	if _, err := sess.ConfirmPending(ctx, ""); !errors.Is(err, ErrNothingPending) {
		t.Fatalf("err = %v, want ErrNothingPending", err)
	}
}

func TestConfirmRequiresSupervisorPIN(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("4711"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(0)}}
	sess, _, _ := newTestSession(t, backend, Config{AllowOutOfStockSales: true, SupervisorPINHash: hash})

	if _, err := sess.Scan(ctx, "8400000000017"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.ConfirmPending(ctx, "0000"); !errors.Is(err, ErrSupervisorPIN) {
		t.Fatalf("wrong pin: err = %v, want ErrSupervisorPIN", err)
	}
	if _, err := sess.ConfirmPending(ctx, "4711"); err != nil {
		t.Fatalf("correct pin rejected: %v", err)
	}
}

func TestInactiveControlUnitConfirmFlow(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		rows:  []domain.ProductSearchRow{stockedRow(0)},
		units: []domain.ControlledUnit{{ControlID: 412, Active: false}},
	}
	sess, _, _ := newTestSession(t, backend, Config{})

	res, err := sess.Scan(ctx, "8400000000017412")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeConfirmRequired || res.ConfirmReason != "control_unit_inactive" {
		t.Fatalf("outcome = %s/%s", res.Outcome, res.ConfirmReason)
	}

	res, err = sess.ConfirmPending(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Line.ControlID == nil || *res.Line.ControlID != 412 {
		t.Fatalf("confirmed line control id = %v, want 412", res.Line.ControlID)
	}
	if res.Line.Quantity != 1 {
		t.Fatalf("controlled line quantity = %d, want 1", res.Line.Quantity)
	}
}

func TestCandidateSelection(t *testing.T) {
	ctx := context.Background()
	other := stockedRow(2)
	other.Product.ProductID = 2
	other.Combination.ProductID = 2
	other.Combination.EAN13 = "8400000000024"
	other.Stock.StockRecordID = 20
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(4), other}}
	sess, _, _ := newTestSession(t, backend, Config{})

	res, err := sess.Scan(ctx, "cava")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeCandidates || len(res.Candidates) != 2 {
		t.Fatalf("scan outcome: %s with %d candidates", res.Outcome, len(res.Candidates))
	}

	added, err := sess.SelectCandidate(ctx, res.CandidateToken, 1)
	if err != nil {
		t.Fatal(err)
	}
	if added.Outcome != OutcomeLineAdded || added.Line.ProductID != 2 {
		t.Fatalf("selected line: %+v", added.Line)
	}

	if _, err := sess.SelectCandidate(ctx, res.CandidateToken, 5); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("out-of-range index: err = %v", err)
	}
}

func TestStaleCandidateTokenRejected(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(4)}}
	sess, _, _ := newTestSession(t, backend, Config{})

	first, err := sess.Scan(ctx, "cava")
	if err != nil {
		t.Fatal(err)
	}
	// A newer search supersedes the first candidate set.
	if _, err := sess.Scan(ctx, "cava brut"); err != nil {
		t.Fatal(err)
	}

	if _, err := sess.SelectCandidate(ctx, first.CandidateToken, 0); !errors.Is(err, ErrStaleCandidates) {
		t.Fatalf("err = %v, want ErrStaleCandidates", err)
	}
}

func TestClearCartSupersedesCandidates(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(4)}}
	sess, store, _ := newTestSession(t, backend, Config{})

	res, err := sess.Scan(ctx, "cava")
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.ClearCart(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := sess.SelectCandidate(ctx, res.CandidateToken, 0); !errors.Is(err, ErrStaleCandidates) {
		t.Fatalf("selection after clear: err = %v, want ErrStaleCandidates", err)
	}
	if _, ok, _ := store.Load(ctx, 1); ok {
		t.Fatal("snapshot survived ClearCart")
	}
}

func TestVoucherScanAndRemove(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		rows:     []domain.ProductSearchRow{stockedRow(4)},
		vouchers: map[string]*domain.Voucher{"DESC20": {Code: "DESC20", Active: true, ReductionPercent: 20}},
	}
	sess, _, _ := newTestSession(t, backend, Config{})

	if _, err := sess.Scan(ctx, "8400000000017"); err != nil {
		t.Fatal(err)
	}
	res, err := sess.Scan(ctx, "#DESC20")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeVoucherApplied {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	// 20% of 12.10 is 2.42.
	if res.Totals.PayableCents != 968 {
		t.Fatalf("payable = %d, want 968", res.Totals.PayableCents)
	}

	if !sess.RemoveDiscount("DESC20") {
		t.Fatal("RemoveDiscount returned false")
	}
	if got := sess.Totals().PayableCents; got != 1210 {
		t.Fatalf("payable after removal = %d, want 1210", got)
	}
	if sess.RemoveDiscount("DESC20") {
		t.Fatal("removing a missing code must return false")
	}
}

func TestVoucherRescanRejected(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		rows:     []domain.ProductSearchRow{stockedRow(4)},
		vouchers: map[string]*domain.Voucher{"DESC20": {Code: "DESC20", Active: true, ReductionPercent: 20}},
	}
	sess, _, _ := newTestSession(t, backend, Config{})

	if _, err := sess.Scan(ctx, "8400000000017"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Scan(ctx, "#DESC20"); err != nil {
		t.Fatal(err)
	}

	if _, err := sess.Scan(ctx, "#DESC20"); !errors.Is(err, domain.ErrVoucherAlreadyApplied) {
		t.Fatalf("rescan of an applied code: err = %v, want ErrVoucherAlreadyApplied", err)
	}
	if got := sess.Totals().PayableCents; got != 968 {
		t.Fatalf("payable after rescan = %d, want 968 (no double discount)", got)
	}
	if got := len(sess.Totals().Discounts); got != 1 {
		t.Fatalf("applied discounts = %d, want 1", got)
	}
}

func TestConcurrentScansStayConsistent(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(1000)}}
	sess, _, _ := newTestSession(t, backend, Config{})

	const workers, scansEach = 4, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*scansEach)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < scansEach; i++ {
				if _, err := sess.Scan(ctx, "8400000000017"); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	lines := sess.Lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].Quantity != workers*scansEach {
		t.Fatalf("quantity = %d, want %d", lines[0].Quantity, workers*scansEach)
	}
}

func TestRestoreReloadsTicket(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []domain.ProductSearchRow{stockedRow(4)}}
	store := session.NewMemoryStore()
	cfg := Config{ShopID: 1, EmployeeID: 5}

	first := NewSession(cfg, backend, store, journal.NewMemoryJournal())
	if _, err := first.Scan(ctx, "8400000000017"); err != nil {
		t.Fatal(err)
	}
	customer := int64(7)
	if err := first.SetCustomer(ctx, &customer, nil); err != nil {
		t.Fatal(err)
	}

	second := NewSession(cfg, backend, store, journal.NewMemoryJournal())
	restored, err := second.Restore(ctx)
	if err != nil || !restored {
		t.Fatalf("restore: restored=%v err=%v", restored, err)
	}
	if len(second.Lines()) != 1 {
		t.Fatalf("restored lines = %d, want 1", len(second.Lines()))
	}
	if second.CustomerID() == nil || *second.CustomerID() != 7 {
		t.Fatalf("restored customer = %v", second.CustomerID())
	}

	empty := NewSession(Config{ShopID: 9}, backend, store, journal.NewMemoryJournal())
	if restored, err := empty.Restore(ctx); err != nil || restored {
		t.Fatalf("restore with no snapshot: restored=%v err=%v", restored, err)
	}
}
