package service

import (
	"context"
	"encoding/json"

	"tally/internal/model"
)

// WriteResult is the outcome of a transaction-creating request. The body and
// status code are what the transport writes; on a replay they are the stored
// response, byte for byte.
type WriteResult struct {
	Transaction *model.Transaction `json:"-"`
	StatusCode  int
	Body        json.RawMessage
	Replayed    bool
}

// TransactionService is the business surface of the core. All transports
// depend on this interface, not on the orchestrator.
type TransactionService interface {
	CreateTransaction(ctx context.Context, key *model.APIKey, idemKey string, req model.CreateTransactionRequest) (*WriteResult, error)
	ReverseTransaction(ctx context.Context, key *model.APIKey, idemKey, transactionID string) (*WriteResult, error)
	GetTransaction(ctx context.Context, key *model.APIKey, transactionID string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, key *model.APIKey, accountID string, filters model.ListFilters, page model.PageRequest) (*model.Page, error)
	GetBalance(ctx context.Context, key *model.APIKey, accountID string) (*model.Balance, error)
	GetUsage(ctx context.Context, key *model.APIKey) (*model.Usage, error)
	CreateAccount(ctx context.Context, key *model.APIKey, accountID string, metadata json.RawMessage) (*model.Account, error)
	GetAccount(ctx context.Context, key *model.APIKey, accountID string) (*model.Account, error)
}
