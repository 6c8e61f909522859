package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CreateTransactionRequest is the write payload entering the orchestrator.
type CreateTransactionRequest struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Type          string          `json:"transaction_type"`
	Status        string          `json:"status,omitempty"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at,omitempty"`
}

// ToTransaction validates the request and builds the ledger record. now is
// the record creation time; the event timestamp defaults to it when the
// caller supplies none.
func (r *CreateTransactionRequest) ToTransaction(now time.Time) (*Transaction, error) {
	txnType, err := ParseTransactionType(r.Type)
	if err != nil {
		return nil, err
	}
	if txnType == TypeReversal {
		return nil, fmt.Errorf("reversals are created through the reverse operation")
	}

	status := InitialStatus(txnType)
	if r.Status != "" {
		status, err = ParseTransactionStatus(r.Status)
		if err != nil {
			return nil, err
		}
		if status == StatusReversed {
			return nil, fmt.Errorf("transactions cannot be created as reversed")
		}
	}

	occurredAt := r.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	txn := &Transaction{
		TransactionID: r.TransactionID,
		AccountID:     r.AccountID,
		Type:          txnType,
		Status:        status,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Description:   r.Description,
		Metadata:      r.Metadata,
		FailureReason: FailureReason(r.FailureReason),
		OccurredAt:    occurredAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := txn.Validate(); err != nil {
		return nil, err
	}
	return txn, nil
}

// ListFilters narrows a transaction listing.
type ListFilters struct {
	Status TransactionStatus
	Type   TransactionType
}

// PageRequest is cursor pagination input. Limit outside [1,100] is rejected.
type PageRequest struct {
	Cursor Cursor
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

func (p *PageRequest) Validate() error {
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit < 1 || p.Limit > MaxPageLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxPageLimit)
	}
	return nil
}

// Page is one page of transactions ordered by creation time descending.
type Page struct {
	Data       []Transaction `json:"data"`
	HasMore    bool          `json:"has_more"`
	NextCursor Cursor        `json:"next_cursor,omitempty"`
}

// StoredResponse is a previously produced outcome held by the idempotency
// store and replayed verbatim, body and status code alike.
type StoredResponse struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	StatusCode    int             `json:"status_code"`
	Body          json.RawMessage `json:"body"`
}
