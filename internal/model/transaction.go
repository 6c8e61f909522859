package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type TransactionType string

const (
	TypePayment       TransactionType = "payment"
	TypeRefund        TransactionType = "refund"
	TypePayout        TransactionType = "payout"
	TypeTransfer      TransactionType = "transfer"
	TypeAuthorization TransactionType = "authorization"
	TypeCapture       TransactionType = "capture"
	TypeReversal      TransactionType = "reversal"
)

// TransactionTypes lists every valid type, in a stable order.
var TransactionTypes = []TransactionType{
	TypePayment, TypeRefund, TypePayout, TypeTransfer,
	TypeAuthorization, TypeCapture, TypeReversal,
}

func ParseTransactionType(s string) (TransactionType, error) {
	for _, t := range TransactionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type: %q", s)
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusSucceeded TransactionStatus = "succeeded"
	StatusFailed    TransactionStatus = "failed"
	StatusReversed  TransactionStatus = "reversed"
	StatusCanceled  TransactionStatus = "canceled"
)

var TransactionStatuses = []TransactionStatus{
	StatusPending, StatusSucceeded, StatusFailed, StatusReversed, StatusCanceled,
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	for _, st := range TransactionStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status: %q", s)
}

// statusTransitions is the explicit state machine for transaction statuses.
// Anything not listed here is an illegal transition and is rejected on write.
var statusTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:   {StatusSucceeded, StatusFailed, StatusCanceled},
	StatusSucceeded: {StatusReversed},
	StatusFailed:    {},
	StatusReversed:  {},
	StatusCanceled:  {},
}

// CanTransition reports whether a transaction may move from one status to another.
// The succeeded → reversed edge is only taken by the reversal operation, which
// appends a new ledger entry referencing the original rather than mutating it.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions at all.
// succeeded is not terminal in this sense: it may still become reversed.
func IsTerminal(s TransactionStatus) bool {
	return len(statusTransitions[s]) == 0
}

type FailureReason string

const (
	FailureInsufficientFunds FailureReason = "insufficient_funds"
	FailureInvalidAccount    FailureReason = "invalid_account"
	FailureNetworkError      FailureReason = "network_error"
	FailureTimeout           FailureReason = "timeout"
	FailureFraud             FailureReason = "fraud"
)

var FailureReasons = []FailureReason{
	FailureInsufficientFunds, FailureInvalidAccount,
	FailureNetworkError, FailureTimeout, FailureFraud,
}

func ParseFailureReason(s string) (FailureReason, error) {
	for _, r := range FailureReasons {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid failure reason: %q", s)
}

// BalanceEffect is the sign a succeeded transaction contributes to its
// account's balance.
type BalanceEffect int

const (
	EffectNone   BalanceEffect = 0
	EffectCredit BalanceEffect = 1
	EffectDebit  BalanceEffect = -1
)

// balanceEffects is the single source of truth for balance semantics: it maps
// every transaction type to the direction it moves the account balance once
// settled. Authorizations are holds and never move the balance; the matching
// capture does.
var balanceEffects = map[TransactionType]BalanceEffect{
	TypePayment:       EffectCredit,
	TypeCapture:       EffectCredit,
	TypeRefund:        EffectDebit,
	TypePayout:        EffectDebit,
	TypeTransfer:      EffectDebit,
	TypeReversal:      EffectDebit,
	TypeAuthorization: EffectNone,
}

// EffectOf returns the balance effect for a transaction type.
func EffectOf(t TransactionType) BalanceEffect {
	return balanceEffects[t]
}

// BalanceContribution returns the signed amount a transaction adds to its
// account's balance. Pending, failed and canceled entries contribute nothing.
// A reversed original keeps its effect: the reversal entry carries the
// offsetting debit, so the pair nets to zero without rewriting history.
func BalanceContribution(t TransactionType, s TransactionStatus, amount int64) int64 {
	switch s {
	case StatusSucceeded, StatusReversed:
		return int64(EffectOf(t)) * amount
	default:
		return 0
	}
}

// InitialStatus is the status a freshly created transaction of the given type
// gets when the caller does not ask for one. Authorizations are holds and
// start pending; everything else settles immediately.
func InitialStatus(t TransactionType) TransactionStatus {
	if t == TypeAuthorization {
		return StatusPending
	}
	return StatusSucceeded
}

var validCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "CAD": {}, "AUD": {},
}

func ValidCurrency(code string) bool {
	_, ok := validCurrencies[code]
	return ok
}

// Transaction is one entry in the ledger. The identifier is caller-assigned
// and immutable; re-submitting it never creates a second record.
type Transaction struct {
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id"`
	Type          TransactionType   `json:"transaction_type"`
	Status        TransactionStatus `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	Metadata      json.RawMessage   `json:"metadata,omitempty"`
	FailureReason FailureReason     `json:"failure_reason,omitempty"`
	// Reverses holds the original transaction id when Type == reversal.
	Reverses   string    `json:"reverses,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the invariants of a transaction record: non-negative
// amount, known enums, and failure_reason set iff status is failed.
func (t *Transaction) Validate() error {
	if t.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}
	if t.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if t.Amount < 0 {
		return fmt.Errorf("amount cannot be negative")
	}
	if _, err := ParseTransactionType(string(t.Type)); err != nil {
		return err
	}
	if _, err := ParseTransactionStatus(string(t.Status)); err != nil {
		return err
	}
	if !ValidCurrency(t.Currency) {
		return fmt.Errorf("invalid currency code: %q", t.Currency)
	}
	if t.Status == StatusFailed {
		if t.FailureReason == "" {
			return fmt.Errorf("failure_reason is required when status is failed")
		}
		if _, err := ParseFailureReason(string(t.FailureReason)); err != nil {
			return err
		}
	} else if t.FailureReason != "" {
		return fmt.Errorf("failure_reason is only allowed when status is failed")
	}
	if t.Type == TypeReversal && t.Reverses == "" {
		return fmt.Errorf("reversal must reference the transaction it reverses")
	}
	if t.Type != TypeReversal && t.Reverses != "" {
		return fmt.Errorf("only reversals may reference another transaction")
	}
	return nil
}
