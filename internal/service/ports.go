package service

import (
	"context"
	"encoding/json"

	"tally/internal/model"
	"tally/internal/repository"
)

// The orchestrator composes four components through these interfaces; the
// repository package provides the Postgres/Redis-backed implementations and
// the tests provide in-memory fakes.

type IdempotencyStore interface {
	Begin(ctx context.Context, accountID, key, requestHash string) (repository.IdempotencyOutcome, error)
	Resolve(ctx context.Context, res repository.Reservation, transactionID string, body []byte, statusCode int) error
	Release(ctx context.Context, res repository.Reservation) error
}

type RateLimiter interface {
	Allow(ctx context.Context, keyID string, limitPerMinute int) (bool, error)
}

type QuotaTracker interface {
	IncrementAndCheck(ctx context.Context, keyID string, limits model.KeyLimits) (repository.QuotaVerdict, error)
	Usage(ctx context.Context, keyID string, limits model.KeyLimits) (model.UsageStats, error)
}

type Ledger interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Get(ctx context.Context, transactionID string) (*model.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, filters model.ListFilters, page model.PageRequest) (*model.Page, error)
	Balance(ctx context.Context, accountID string) (*model.Balance, error)
	Reverse(ctx context.Context, originalID, reversalID string) (*model.Transaction, error)
}

type Accounts interface {
	Create(ctx context.Context, accountID string, metadata json.RawMessage) (*model.Account, error)
	Get(ctx context.Context, accountID string) (*model.Account, error)
}
