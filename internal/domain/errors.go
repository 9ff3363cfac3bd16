package domain

import "errors"

// Resolution and checkout error taxonomy. Handlers map these to statuses;
// everything else is treated as an internal error.
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrControlUnitNotFound = errors.New("control unit not found")
	// ErrControlUnitInactive is recoverable: an operator may explicitly
	// confirm the resale of an already-sold tag.
	ErrControlUnitInactive   = errors.New("control unit inactive")
	ErrControlUnitDuplicate  = errors.New("control unit already in cart")
	ErrOutOfStock            = errors.New("out of stock")
	ErrVoucherInactive       = errors.New("voucher inactive")
	ErrVoucherWrongCustomer  = errors.New("voucher restricted to another customer")
	ErrVoucherWrongShop      = errors.New("voucher restricted to another shop")
	ErrVoucherAlreadyApplied = errors.New("voucher already applied")
	ErrInsufficientPayment   = errors.New("insufficient payment")
	// ErrOrderSubmissionFailed wraps any network or server error during
	// Submitting. The ledger is preserved and retry is manual.
	ErrOrderSubmissionFailed = errors.New("order submission failed")
	// ErrSessionExpired is raised on a 401 from the backend and surfaced
	// upward; the client never refreshes or retries internally.
	ErrSessionExpired = errors.New("session expired")
	ErrSubmitInFlight = errors.New("submission already in flight")
	ErrInvalidInput   = errors.New("invalid input")
)
