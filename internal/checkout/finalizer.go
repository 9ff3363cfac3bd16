package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tiendapos/client/internal/discount"
	"tiendapos/client/internal/domain"
	"tiendapos/client/internal/xid"
)

type State string

const (
	StateIdle       State = "idle"
	StateReviewing  State = "reviewing"
	StateSubmitting State = "submitting"
	StateFailed     State = "failed"
)

// Journal is the local attempt log; failures to write it never block a sale.
type Journal interface {
	Append(ctx context.Context, entry domain.JournalEntry) error
	UpdateStatus(ctx context.Context, id string, status string, serverOrderID int64, detail string) error
}

// Finalizer drives Idle -> Reviewing -> Submitting -> settled/Failed. Only
// one submission may be in flight; a second finalize while Submitting is
// rejected, not queued. After a Failed attempt the ledger and discounts are
// untouched and the same idempotency token is reused on manual retry, so the
// server can collapse duplicates.
type Finalizer struct {
	session *Session
	journal Journal
}

func newFinalizer(s *Session, jrnl Journal) *Finalizer {
	return &Finalizer{session: s, journal: jrnl}
}

func (s *Session) Finalizer() *Finalizer { return s.finalizer }

// FinalizeResult is the settled outcome. VoucherIssuedCents is non-zero when
// the sale was fully covered by vouchers and the leftover was reissued.
type FinalizeResult struct {
	Order              domain.Order `json:"order"`
	ServerOrderID      int64        `json:"server_order_id"`
	ChangeCents        int64        `json:"change_cents"`
	VoucherIssued      bool         `json:"voucher_issued"`
	VoucherIssuedCents int64        `json:"voucher_issued_cents,omitempty"`
}

// OpenReview snapshots the ticket for the final-sale view. Reopening an
// already-open review is a no-op; a failed attempt stays reviewable for
// retry.
func (f *Finalizer) OpenReview() error {
	s := f.session
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSubmitting:
		return domain.ErrSubmitInFlight
	case StateReviewing, StateFailed:
		return nil
	}
	if s.ledger.Empty() {
		return domain.ErrInvalidInput
	}
	s.state = StateReviewing
	return nil
}

// Cancel closes the final-sale view with no side effects. Cancelling while
// Submitting is not permitted; the caller must wait for the outcome.
func (f *Finalizer) Cancel() error {
	s := f.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.ErrSubmitInFlight
	}
	if s.state == StateReviewing || s.state == StateFailed {
		s.state = StateIdle
	}
	return nil
}

// Finalize submits the order. A payable total of exactly zero branches to
// the voucher-issued terminal outcome and skips payment entry entirely.
func (f *Finalizer) Finalize(ctx context.Context) (FinalizeResult, error) {
	s := f.session

	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return FinalizeResult{}, domain.ErrSubmitInFlight
	case StateReviewing, StateFailed:
	default:
		state := s.state
		s.mu.Unlock()
		return FinalizeResult{}, fmt.Errorf("%w: finalize from state %s", domain.ErrInvalidInput, state)
	}

	subtotal := s.ledger.SubtotalInclCents()
	applied, payable := discount.Apply(subtotal, s.discounts)

	if payable > 0 && !s.recon.CanFinalize(payable) {
		s.mu.Unlock()
		return FinalizeResult{}, domain.ErrInsufficientPayment
	}

	// The token survives Failed -> retry and is only rotated after settle.
	if s.idemToken == "" {
		s.idemToken = uuid.NewString()
	}

	order := domain.Order{
		OrderID:          xid.New("order"),
		ShopID:           s.cfg.ShopID,
		EmployeeID:       s.cfg.EmployeeID,
		CustomerID:       s.customerID,
		IdempotencyToken: s.idemToken,
		Lines:            s.ledger.Lines(),
		Discounts:        applied,
		Payments:         s.recon.Tenders(),
		SubtotalCents:    subtotal,
		PayableCents:     payable,
		ChangeCents:      s.recon.ChangeCents(payable),
		CreatedAt:        time.Now().UTC(),
	}
	if payable == 0 {
		order.ChangeCents = 0
		order.Payments = nil
	}

	journalID := xid.New("jrn")
	f.logAttempt(ctx, domain.JournalEntry{
		ID:               journalID,
		ShopID:           order.ShopID,
		IdempotencyToken: order.IdempotencyToken,
		Status:           domain.JournalStatusSubmitting,
		PayableCents:     order.PayableCents,
		CreatedAt:        order.CreatedAt,
	})

	// The submission itself runs outside the lock so concurrent ticket
	// mutations fail fast on the Submitting state instead of queueing
	// behind the network call.
	s.state = StateSubmitting
	s.mu.Unlock()

	serverOrderID, err := s.backend.CreateOrder(ctx, order)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		f.updateAttempt(ctx, journalID, domain.JournalStatusFailed, 0, err.Error())
		if errors.Is(err, domain.ErrSessionExpired) {
			return FinalizeResult{}, err
		}
		return FinalizeResult{}, fmt.Errorf("%w: %v", domain.ErrOrderSubmissionFailed, err)
	}

	order.ServerOrderID = serverOrderID
	f.updateAttempt(ctx, journalID, domain.JournalStatusSettled, serverOrderID, "")

	result := FinalizeResult{
		Order:         order,
		ServerOrderID: serverOrderID,
		ChangeCents:   order.ChangeCents,
	}

	if payable == 0 {
		if leftover := discount.TotalLeftoverCents(applied); leftover > 0 {
			descriptor := domain.VoucherDescriptor{
				Name:           fmt.Sprintf("leftover %s", order.OrderID),
				ReductionCents: leftover,
				CustomerID:     s.customerID,
			}
			shopID := s.cfg.ShopID
			descriptor.ShopID = &shopID
			if err := s.backend.CreateVoucher(ctx, descriptor); err != nil {
				// The order is already committed; the voucher can be issued
				// manually from the backend if this fails.
				log.Printf("[checkout] WARN: leftover voucher issuance failed order=%s cents=%d: %v", order.OrderID, leftover, err)
			} else {
				result.VoucherIssued = true
				result.VoucherIssuedCents = leftover
			}
		}
	}

	// Post-commit reset: new ticket, new token.
	s.ledger.Clear()
	s.discounts = nil
	s.recon.Reset()
	s.pending = nil
	s.candidates = nil
	s.idemToken = ""
	s.state = StateIdle
	if err := s.snapshots.Clear(ctx, s.cfg.ShopID); err != nil {
		log.Printf("[checkout] WARN: failed to clear cart snapshot shop=%d: %v", s.cfg.ShopID, err)
	}

	return result, nil
}

func (f *Finalizer) logAttempt(ctx context.Context, entry domain.JournalEntry) {
	if f.journal == nil {
		return
	}
	if err := f.journal.Append(ctx, entry); err != nil {
		log.Printf("[journal] WARN: failed to append attempt id=%s: %v", entry.ID, err)
	}
}

func (f *Finalizer) updateAttempt(ctx context.Context, id string, status string, serverOrderID int64, detail string) {
	if f.journal == nil {
		return
	}
	if err := f.journal.UpdateStatus(ctx, id, status, serverOrderID, detail); err != nil {
		log.Printf("[journal] WARN: failed to update attempt id=%s status=%s: %v", id, status, err)
	}
}
