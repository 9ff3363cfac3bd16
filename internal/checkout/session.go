package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tiendapos/client/internal/cart"
	"tiendapos/client/internal/catalog"
	"tiendapos/client/internal/discount"
	"tiendapos/client/internal/domain"
	"tiendapos/client/internal/payment"
	"tiendapos/client/internal/resolver"
	"tiendapos/client/internal/session"
	"tiendapos/client/internal/stockgate"
)

// ErrStaleCandidates rejects a candidate selection whose search has been
// superseded by a later scan or a cart reset.
var ErrStaleCandidates = errors.New("candidate set superseded")

// ErrNothingPending rejects a confirm when no confirmation is awaited.
var ErrNothingPending = errors.New("no pending confirmation")

// ErrSupervisorPIN rejects a confirm with a wrong supervisor PIN.
var ErrSupervisorPIN = errors.New("invalid supervisor pin")

// Backend is everything the session needs from the retail server.
type Backend interface {
	resolver.Source
	CreateOrder(ctx context.Context, order domain.Order) (int64, error)
	CreateVoucher(ctx context.Context, descriptor domain.VoucherDescriptor) error
}

// Config fixes the till identity and policy for the session's lifetime.
type Config struct {
	ShopID               int64
	EmployeeID           int64
	ForAllShops          bool
	AllowOutOfStockSales bool
	// SupervisorPINHash, when set, is the bcrypt hash an operator must match
	// to confirm force-adds and inactive-tag resales. Empty means confirms
	// are a plain acknowledgement.
	SupervisorPINHash []byte
}

// Session owns the open ticket: the cart ledger, the applied discounts, the
// payment reconciler and the finalizer state. Handlers call it from
// concurrent goroutines, so every exported method serializes on mu; the
// Submitting state is the re-entrancy rejection, not the lock.
type Session struct {
	mu sync.Mutex

	cfg       Config
	resolver  *resolver.Resolver
	backend   Backend
	ledger    *cart.Ledger
	discounts []domain.AppliedDiscount
	recon     *payment.Reconciler
	snapshots session.Store

	state      State
	idemToken  string
	customerID *int64
	addressID  *int64

	pending        *pendingConfirm
	candidates     []catalog.Match
	candidateToken uint64
	searchSeq      uint64

	finalizer *Finalizer
}

type pendingConfirm struct {
	line   resolver.LineCandidate
	reason error
}

func NewSession(cfg Config, backend Backend, snapshots session.Store, jrnl Journal) *Session {
	s := &Session{
		cfg:       cfg,
		resolver:  resolver.New(backend, cfg.ShopID, cfg.ForAllShops),
		backend:   backend,
		ledger:    cart.NewLedger(),
		recon:     payment.NewReconciler(),
		snapshots: snapshots,
		state:     StateIdle,
	}
	s.finalizer = newFinalizer(s, jrnl)
	return s
}

// Totals is the derived view the UI renders after every mutation.
type Totals struct {
	SubtotalCents int64                    `json:"subtotal_cents"`
	Discounts     []domain.AppliedDiscount `json:"discounts,omitempty"`
	PayableCents  int64                    `json:"payable_cents"`
	EnteredCents  int64                    `json:"entered_cents"`
	ChangeCents   int64                    `json:"change_cents"`
	CanFinalize   bool                     `json:"can_finalize"`
	TotalQuantity int                      `json:"total_quantity"`
}

// Totals recomputes the discount simulation against the current subtotal.
// The simulation is pure, so preview and commit agree for identical inputs.
func (s *Session) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals()
}

func (s *Session) totals() Totals {
	subtotal := s.ledger.SubtotalInclCents()
	applied, payable := discount.Apply(subtotal, s.discounts)
	return Totals{
		SubtotalCents: subtotal,
		Discounts:     applied,
		PayableCents:  payable,
		EnteredCents:  s.recon.EnteredTotalCents(),
		ChangeCents:   s.recon.ChangeCents(payable),
		CanFinalize:   s.recon.CanFinalize(payable),
		TotalQuantity: s.ledger.TotalQuantity(),
	}
}

func (s *Session) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Lines()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ScanResult is the tagged outcome of one scan, pre-gated and applied where
// the grammar allows auto-resolution.
type ScanResult struct {
	Outcome        string                  `json:"outcome"`
	Line           *domain.CartLine        `json:"line,omitempty"`
	Candidates     []catalog.Match         `json:"candidates,omitempty"`
	CandidateToken uint64                  `json:"candidate_token,omitempty"`
	Discount       *domain.AppliedDiscount `json:"discount,omitempty"`
	ConfirmReason  string                  `json:"confirm_reason,omitempty"`
	Totals         Totals                  `json:"totals"`
}

const (
	OutcomeLineAdded       = "line_added"
	OutcomeCandidates      = "candidates"
	OutcomeVoucherApplied  = "voucher_applied"
	OutcomeConfirmRequired = "confirm_required"
)

// Scan resolves raw input and drives it through the stock gate into the
// ledger. While a submission is in flight the ticket is frozen.
func (s *Session) Scan(ctx context.Context, raw string) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ScanResult{}, domain.ErrSubmitInFlight
	}

	res, err := s.resolver.Resolve(ctx, raw, s.ledger.SubtotalInclCents(), s.customerID)
	if err != nil {
		return ScanResult{}, err
	}

	switch res.Kind {
	case resolver.KindVoucher:
		for _, d := range s.discounts {
			if d.Code == res.Voucher.Code {
				return ScanResult{}, domain.ErrVoucherAlreadyApplied
			}
		}
		s.discounts = append(s.discounts, *res.Voucher)
		return ScanResult{Outcome: OutcomeVoucherApplied, Discount: res.Voucher, Totals: s.totals()}, nil

	case resolver.KindCandidates:
		s.searchSeq++
		s.candidates = res.Candidates
		s.candidateToken = s.searchSeq
		return ScanResult{Outcome: OutcomeCandidates, Candidates: res.Candidates, CandidateToken: s.candidateToken, Totals: s.totals()}, nil

	case resolver.KindConfirmControlUnit:
		s.pending = &pendingConfirm{line: *res.Line, reason: domain.ErrControlUnitInactive}
		return ScanResult{Outcome: OutcomeConfirmRequired, ConfirmReason: "control_unit_inactive", Totals: s.totals()}, nil

	case resolver.KindAutoLine:
		return s.gateAndAdd(ctx, *res.Line)
	}

	return ScanResult{}, domain.ErrInvalidInput
}

func (s *Session) gateAndAdd(ctx context.Context, candidate resolver.LineCandidate) (ScanResult, error) {
	controlledActive := candidate.ControlID != nil
	verdict := stockgate.Evaluate(candidate.Match.Stock, controlledActive, s.cfg.AllowOutOfStockSales)

	switch verdict.Decision {
	case stockgate.Rejected:
		return ScanResult{}, verdict.Reason
	case stockgate.ConfirmationRequired:
		s.pending = &pendingConfirm{line: candidate, reason: domain.ErrOutOfStock}
		return ScanResult{Outcome: OutcomeConfirmRequired, ConfirmReason: "out_of_stock", Totals: s.totals()}, nil
	}

	line, err := s.ledger.AddLine(candidate.Match.Combination, candidate.Match.Stock, candidate.ControlID)
	if err != nil {
		return ScanResult{}, err
	}
	s.persist(ctx)
	return ScanResult{Outcome: OutcomeLineAdded, Line: &line, Totals: s.totals()}, nil
}

// SelectCandidate adds one entry of a previously returned candidate set. The
// token correlates the selection to the search that produced it; a selection
// from a superseded set is discarded.
func (s *Session) SelectCandidate(ctx context.Context, token uint64, index int) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ScanResult{}, domain.ErrSubmitInFlight
	}
	if token != s.candidateToken || s.candidates == nil {
		return ScanResult{}, ErrStaleCandidates
	}
	if index < 0 || index >= len(s.candidates) {
		return ScanResult{}, domain.ErrInvalidInput
	}
	return s.gateAndAdd(ctx, resolver.LineCandidate{Match: s.candidates[index]})
}

// ConfirmPending completes a confirmation-required outcome. With a supervisor
// PIN configured, the PIN must verify. Out-of-stock confirms force-add exactly
// one unit; inactive-tag confirms add the tag as its own quantity-one line.
func (s *Session) ConfirmPending(ctx context.Context, pin string) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ScanResult{}, domain.ErrSubmitInFlight
	}
	if s.pending == nil {
		return ScanResult{}, ErrNothingPending
	}
	if len(s.cfg.SupervisorPINHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(s.cfg.SupervisorPINHash, []byte(pin)); err != nil {
			return ScanResult{}, ErrSupervisorPIN
		}
	}

	pending := *s.pending
	s.pending = nil

	var line domain.CartLine
	var err error
	if errors.Is(pending.reason, domain.ErrControlUnitInactive) {
		line, err = s.ledger.AddLine(pending.line.Match.Combination, pending.line.Match.Stock, pending.line.ControlID)
	} else {
		line, err = s.ledger.ForceAddLine(pending.line.Match.Combination, pending.line.Match.Stock)
	}
	if err != nil {
		return ScanResult{}, err
	}

	s.persist(ctx)
	return ScanResult{Outcome: OutcomeLineAdded, Line: &line, Totals: s.totals()}, nil
}

// RejectPending drops the awaiting confirmation with no cart change.
func (s *Session) RejectPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

func (s *Session) DecreaseLine(ctx context.Context, key domain.LineKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.ErrSubmitInFlight
	}
	if !s.ledger.DecreaseLine(key) {
		return domain.ErrInvalidInput
	}
	s.persist(ctx)
	return nil
}

func (s *Session) RemoveLine(ctx context.Context, key domain.LineKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.ErrSubmitInFlight
	}
	if !s.ledger.RemoveLine(key) {
		return domain.ErrInvalidInput
	}
	s.persist(ctx)
	return nil
}

// ClearCart empties the ticket, drops applied discounts and tenders, and
// removes the persisted snapshot. Any outstanding candidate set or pending
// confirmation is superseded.
func (s *Session) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.ErrSubmitInFlight
	}
	s.ledger.Clear()
	s.discounts = nil
	s.recon.Reset()
	s.pending = nil
	s.candidates = nil
	s.searchSeq++
	s.state = StateIdle
	if err := s.snapshots.Clear(ctx, s.cfg.ShopID); err != nil {
		log.Printf("[session] WARN: failed to clear cart snapshot shop=%d: %v", s.cfg.ShopID, err)
	}
	return nil
}

func (s *Session) RemoveDiscount(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return false
	}
	for i, d := range s.discounts {
		if d.Code == code {
			s.discounts = append(s.discounts[:i], s.discounts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) SetTenderAmount(method domain.TenderMethod, cents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.ErrSubmitInFlight
	}
	return s.recon.SetAmount(method, cents)
}

func (s *Session) ToggleTender(method domain.TenderMethod, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.ErrSubmitInFlight
	}
	return s.recon.Toggle(method, on, s.totals().PayableCents)
}

// SetCustomer selects the customer/address the ticket is for. Voucher
// customer restrictions check against this selection.
func (s *Session) SetCustomer(ctx context.Context, customerID *int64, addressID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.ErrSubmitInFlight
	}
	s.customerID = customerID
	s.addressID = addressID
	s.persist(ctx)
	return nil
}

func (s *Session) CustomerID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerID
}

func (s *Session) ShopID() int64 { return s.cfg.ShopID }

// persist saves the snapshot after every ledger mutation; persistence
// failures are logged, never fatal to the sale in progress.
func (s *Session) persist(ctx context.Context) {
	snapshot := domain.CartSnapshot{
		ShopID:     s.cfg.ShopID,
		Lines:      s.ledger.Lines(),
		CustomerID: s.customerID,
		AddressID:  s.addressID,
		SavedAt:    time.Now().UTC(),
	}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		log.Printf("[session] WARN: failed to persist cart snapshot shop=%d: %v", s.cfg.ShopID, err)
	}
}

// Restore reloads the persisted ticket after a process restart. Nothing to
// restore is not an error. The ticket is frozen while a submission is in
// flight, exactly like the other ledger mutations.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return false, domain.ErrSubmitInFlight
	}

	snapshot, found, err := s.snapshots.Load(ctx, s.cfg.ShopID)
	if err != nil {
		return false, fmt.Errorf("restore cart snapshot: %w", err)
	}
	if !found {
		return false, nil
	}
	s.ledger.Restore(snapshot.Lines)
	s.customerID = snapshot.CustomerID
	s.addressID = snapshot.AddressID
	return true, nil
}
