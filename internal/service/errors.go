package service

import "errors"

// Every rejected or exceeded outcome is a first-class error value the
// transport maps to a distinguishing status. Nothing here is an exception
// path.
var (
	// ErrValidation wraps malformed input rejected before the pipeline runs.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited is returned when the per-minute window is exhausted.
	// The rejected attempt has already consumed a slot.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrDailyQuotaExceeded and ErrMonthlyQuotaExceeded are distinguished;
	// daily is checked first and the first violated threshold is reported.
	ErrDailyQuotaExceeded   = errors.New("daily quota exceeded")
	ErrMonthlyQuotaExceeded = errors.New("monthly quota exceeded")

	// ErrRequestInFlight means an identical request holds an unresolved
	// idempotency reservation and the bounded wait ran out. Retryable.
	ErrRequestInFlight = errors.New("an identical request is already in flight")

	// ErrIdempotencyMismatch means an idempotency key was reused with a
	// payload different from the one bound to its record.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different payload")

	// ErrConflict is a ledger identifier collision outside the
	// idempotency-key path.
	ErrConflict = errors.New("transaction identifier conflict")

	// ErrNotFound wraps missing accounts and transactions.
	ErrNotFound = errors.New("not found")

	// ErrNotReversible is returned for reversal requests against
	// transactions whose status or type does not admit one.
	ErrNotReversible = errors.New("transaction cannot be reversed")

	// ErrStoreUnavailable wraps backing-store failures. The request fails
	// and the client retries with the same idempotency key.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
