package model

import (
	"encoding/json"
	"time"
)

// Account owns transactions. Its balance is never stored: it is always
// derived by folding the account's ledger entries.
type Account struct {
	AccountID string          `json:"account_id"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Balance struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
}
