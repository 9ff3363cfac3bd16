package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tiendapos/client/internal/checkout"
	"tiendapos/client/internal/domain"
)

// JournalLister reads back recent submission attempts for the audit view.
type JournalLister interface {
	ListByShop(ctx context.Context, shopID int64, limit int) ([]domain.JournalEntry, error)
}

// API is the local surface the till UI talks to. It carries no
// authentication of its own: it binds to loopback and the backend bearer
// token never leaves the engine.
type API struct {
	session       *checkout.Session
	journal       JournalLister
	allowedOrigin string
}

func New(session *checkout.Session, jrnl JournalLister, allowedOrigin string) *API {
	return &API{session: session, journal: jrnl, allowedOrigin: allowedOrigin}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/scan", a.handleScan)
	mux.HandleFunc("/api/v1/candidates/select", a.handleSelectCandidate)
	mux.HandleFunc("/api/v1/confirm", a.handleConfirm)

	mux.HandleFunc("/api/v1/cart", a.handleCart)
	mux.HandleFunc("/api/v1/cart/lines/decrease", a.handleDecreaseLine)
	mux.HandleFunc("/api/v1/cart/lines/remove", a.handleRemoveLine)
	mux.HandleFunc("/api/v1/cart/clear", a.handleClearCart)
	mux.HandleFunc("/api/v1/cart/customer", a.handleSetCustomer)
	mux.HandleFunc("/api/v1/cart/discounts/remove", a.handleRemoveDiscount)
	mux.HandleFunc("/api/v1/cart/restore", a.handleRestore)

	mux.HandleFunc("/api/v1/tenders/amount", a.handleTenderAmount)
	mux.HandleFunc("/api/v1/tenders/toggle", a.handleTenderToggle)

	mux.HandleFunc("/api/v1/journal", a.handleJournal)

	mux.HandleFunc("/api/v1/checkout/review", a.handleReview)
	mux.HandleFunc("/api/v1/checkout/cancel", a.handleCancel)
	mux.HandleFunc("/api/v1/checkout/finalize", a.handleFinalize)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"state": a.session.State(),
		"at":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.session.Scan(r.Context(), req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSelectCandidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Token uint64 `json:"token"`
		Index int    `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.session.SelectCandidate(r.Context(), req.Token, req.Index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Accept bool   `json:"accept"`
		PIN    string `json:"pin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !req.Accept {
		a.session.RejectPending()
		writeJSON(w, http.StatusOK, map[string]any{"rejected": true, "totals": a.session.Totals()})
		return
	}

	result, err := a.session.ConfirmPending(r.Context(), req.PIN)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":  a.session.Lines(),
		"totals": a.session.Totals(),
		"state":  a.session.State(),
	})
}

type lineKeyRequest struct {
	ProductID     int64 `json:"product_id"`
	AttributeID   int64 `json:"attribute_id"`
	StockRecordID int64 `json:"stock_record_id"`
	ControlID     int64 `json:"control_id"`
}

func (req lineKeyRequest) key() domain.LineKey {
	return domain.LineKey{
		ProductID:     req.ProductID,
		AttributeID:   req.AttributeID,
		StockRecordID: req.StockRecordID,
		ControlID:     req.ControlID,
	}
}

func (a *API) handleDecreaseLine(w http.ResponseWriter, r *http.Request) {
	a.handleLineOp(w, r, a.session.DecreaseLine)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	a.handleLineOp(w, r, a.session.RemoveLine)
}

func (a *API) handleLineOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, key domain.LineKey) error) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req lineKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := op(r.Context(), req.key()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": a.session.Lines(), "totals": a.session.Totals()})
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.session.ClearCart(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": a.session.Totals()})
}

func (a *API) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		CustomerID *int64 `json:"customer_id"`
		AddressID  *int64 `json:"address_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.session.SetCustomer(r.Context(), req.CustomerID, req.AddressID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer_id": req.CustomerID})
}

func (a *API) handleRemoveDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !a.session.RemoveDiscount(strings.TrimSpace(req.Code)) {
		writeError(w, http.StatusNotFound, errors.New("discount not applied"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": a.session.Totals()})
}

func (a *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	restored, err := a.session.Restore(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"restored": restored,
		"lines":    a.session.Lines(),
		"totals":   a.session.Totals(),
	})
}

func (a *API) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	entries, err := a.journal.ListByShop(r.Context(), a.session.ShopID(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleTenderAmount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Method      string `json:"method"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.session.SetTenderAmount(domain.TenderMethod(req.Method), req.AmountCents); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": a.session.Totals()})
}

func (a *API) handleTenderToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Method  string `json:"method"`
		Enabled bool   `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.session.ToggleTender(domain.TenderMethod(req.Method), req.Enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": a.session.Totals()})
}

func (a *API) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.session.Finalizer().OpenReview(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  a.session.State(),
		"lines":  a.session.Lines(),
		"totals": a.session.Totals(),
	})
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.session.Finalizer().Cancel(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": a.session.State()})
}

func (a *API) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	result, err := a.session.Finalizer().Finalize(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeDomainError maps the resolution/checkout taxonomy onto statuses. The
// two signals that cross the core/UI boundary keep distinct codes: 401 asks
// the surrounding app to re-authenticate, 502 asks the operator to retry.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrControlUnitNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrControlUnitInactive),
		errors.Is(err, domain.ErrControlUnitDuplicate),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrVoucherInactive),
		errors.Is(err, domain.ErrVoucherWrongCustomer),
		errors.Is(err, domain.ErrVoucherWrongShop),
		errors.Is(err, domain.ErrVoucherAlreadyApplied),
		errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrSubmitInFlight),
		errors.Is(err, checkout.ErrStaleCandidates),
		errors.Is(err, checkout.ErrNothingPending):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, checkout.ErrSupervisorPIN):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domain.ErrOrderSubmissionFailed):
		writeError(w, http.StatusBadGateway, err)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages stay generic so backend internals never leak to the UI.
	msg := err.Error()
	if status >= 500 && status != http.StatusBadGateway {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
