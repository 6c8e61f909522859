package model

import "time"

// TransactionEvent is published to the bus after a ledger write commits.
// Downstream consumers dedupe on TransactionID.
type TransactionEvent struct {
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id"`
	Type          TransactionType   `json:"transaction_type"`
	Status        TransactionStatus `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	CreatedAt     time.Time         `json:"created_at"`
}
