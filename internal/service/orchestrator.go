package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"tally/internal/model"
	"tally/internal/repository"
)

// Bounded wait for a concurrent identical request: a handful of short
// attempts, then the caller is told to retry later. Never an unbounded block.
const (
	inFlightAttempts = 4
	inFlightBackoff  = 50 * time.Millisecond
)

var errStillInFlight = errors.New("reservation still in flight")

// Orchestrator sequences the four core components for every write:
// idempotency, rate limit, quota, ledger, idempotency resolution. Reads skip
// the write-specific steps but still pass the rate limiter.
type Orchestrator struct {
	idem     IdempotencyStore
	limiter  RateLimiter
	quota    QuotaTracker
	ledger   Ledger
	accounts Accounts
	bus      repository.MessageBus
	now      func() time.Time
}

func NewOrchestrator(
	idem IdempotencyStore,
	limiter RateLimiter,
	quota QuotaTracker,
	ledger Ledger,
	accounts Accounts,
	bus repository.MessageBus,
) *Orchestrator {
	return &Orchestrator{
		idem:     idem,
		limiter:  limiter,
		quota:    quota,
		ledger:   ledger,
		accounts: accounts,
		bus:      bus,
		now:      time.Now,
	}
}

var _ TransactionService = (*Orchestrator)(nil)

// CreateTransaction runs the full write pipeline. Exactly one ledger write
// occurs per (account, idempotency key) pair within the record's TTL.
func (o *Orchestrator) CreateTransaction(ctx context.Context, key *model.APIKey, idemKey string, req model.CreateTransactionRequest) (*WriteResult, error) {
	if idemKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	txn, err := req.ToTransaction(o.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	fingerprint := requestFingerprint(req)
	outcome, err := o.beginWithWait(ctx, txn.AccountID, idemKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if outcome.Kind == repository.IdempotencyExisting {
		if outcome.RequestHash != fingerprint {
			return nil, ErrIdempotencyMismatch
		}
		return replay(outcome.Stored), nil
	}
	res := outcome.Reservation

	if err := o.checkRate(ctx, key); err != nil {
		o.release(ctx, res)
		return nil, err
	}
	if err := o.checkQuota(ctx, key); err != nil {
		o.release(ctx, res)
		return nil, err
	}

	created, err := o.ledger.Create(ctx, txn)
	switch {
	case err == nil:
		return o.finish(ctx, res, created, http.StatusCreated)

	case errors.Is(err, repository.ErrDuplicateTransaction):
		// created holds the existing record. A resumed reservation means a
		// previous attempt committed the ledger write but never resolved:
		// adopt its result instead of reporting a conflict.
		if outcome.Resumed && created != nil && created.AccountID == txn.AccountID {
			return o.finish(ctx, res, created, http.StatusCreated)
		}
		return nil, o.resolveConflict(ctx, res, txn.TransactionID)

	case errors.Is(err, repository.ErrAccountNotFound):
		o.release(ctx, res)
		return nil, fmt.Errorf("%w: account %q", ErrNotFound, txn.AccountID)

	default:
		o.release(ctx, res)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// ReverseTransaction appends a reversal for a succeeded credit-effect
// transaction through the same pipeline. The reversal identifier is derived
// from the original so retries collide on the ledger's own guard.
func (o *Orchestrator) ReverseTransaction(ctx context.Context, key *model.APIKey, idemKey, transactionID string) (*WriteResult, error) {
	if idemKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}

	original, err := o.ledger.Get(ctx, transactionID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, fmt.Errorf("%w: transaction %q", ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	fingerprint := requestFingerprint(struct {
		Operation     string `json:"operation"`
		TransactionID string `json:"transaction_id"`
	}{"reverse", transactionID})
	outcome, err := o.beginWithWait(ctx, original.AccountID, idemKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if outcome.Kind == repository.IdempotencyExisting {
		if outcome.RequestHash != fingerprint {
			return nil, ErrIdempotencyMismatch
		}
		return replay(outcome.Stored), nil
	}
	res := outcome.Reservation

	if err := o.checkRate(ctx, key); err != nil {
		o.release(ctx, res)
		return nil, err
	}
	if err := o.checkQuota(ctx, key); err != nil {
		o.release(ctx, res)
		return nil, err
	}

	reversalID := "rev_" + transactionID
	reversal, err := o.ledger.Reverse(ctx, transactionID, reversalID)
	switch {
	case err == nil:
		return o.finish(ctx, res, reversal, http.StatusCreated)

	case errors.Is(err, repository.ErrAlreadyReversed), errors.Is(err, repository.ErrDuplicateTransaction):
		if outcome.Resumed {
			if existing, getErr := o.ledger.Get(ctx, reversalID); getErr == nil {
				return o.finish(ctx, res, existing, http.StatusCreated)
			}
		}
		return nil, o.resolveConflict(ctx, res, reversalID)

	case errors.Is(err, repository.ErrNotReversible):
		o.release(ctx, res)
		return nil, fmt.Errorf("%w: %v", ErrNotReversible, err)

	case errors.Is(err, repository.ErrTransactionNotFound):
		o.release(ctx, res)
		return nil, fmt.Errorf("%w: transaction %q", ErrNotFound, transactionID)

	default:
		o.release(ctx, res)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (o *Orchestrator) GetTransaction(ctx context.Context, key *model.APIKey, transactionID string) (*model.Transaction, error) {
	if err := o.checkRate(ctx, key); err != nil {
		return nil, err
	}
	txn, err := o.ledger.Get(ctx, transactionID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, fmt.Errorf("%w: transaction %q", ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return txn, nil
}

func (o *Orchestrator) ListTransactions(ctx context.Context, key *model.APIKey, accountID string, filters model.ListFilters, page model.PageRequest) (*model.Page, error) {
	if err := o.checkRate(ctx, key); err != nil {
		return nil, err
	}
	if err := page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if page.Cursor != "" {
		if _, _, err := page.Cursor.Decode(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err)
		}
	}
	result, err := o.ledger.ListByAccount(ctx, accountID, filters, page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return result, nil
}

func (o *Orchestrator) GetBalance(ctx context.Context, key *model.APIKey, accountID string) (*model.Balance, error) {
	if err := o.checkRate(ctx, key); err != nil {
		return nil, err
	}
	balance, err := o.ledger.Balance(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account %q", ErrNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return balance, nil
}

func (o *Orchestrator) GetUsage(ctx context.Context, key *model.APIKey) (*model.Usage, error) {
	if err := o.checkRate(ctx, key); err != nil {
		return nil, err
	}
	stats, err := o.quota.Usage(ctx, key.KeyID, key.Limits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &model.Usage{KeyID: key.KeyID, Limits: key.Limits, Usage: stats}, nil
}

func (o *Orchestrator) CreateAccount(ctx context.Context, key *model.APIKey, accountID string, metadata json.RawMessage) (*model.Account, error) {
	if err := o.checkRate(ctx, key); err != nil {
		return nil, err
	}
	account, err := o.accounts.Create(ctx, accountID, metadata)
	if errors.Is(err, repository.ErrDuplicateAccount) {
		return nil, fmt.Errorf("%w: account %q", ErrConflict, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	return account, nil
}

func (o *Orchestrator) GetAccount(ctx context.Context, key *model.APIKey, accountID string) (*model.Account, error) {
	if err := o.checkRate(ctx, key); err != nil {
		return nil, err
	}
	account, err := o.accounts.Get(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account %q", ErrNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return account, nil
}

// beginWithWait reserves the idempotency record, retrying a few times when a
// concurrent identical request holds an unresolved reservation.
func (o *Orchestrator) beginWithWait(ctx context.Context, accountID, idemKey, fingerprint string) (repository.IdempotencyOutcome, error) {
	var outcome repository.IdempotencyOutcome
	backoff := retry.WithMaxRetries(inFlightAttempts, retry.NewConstant(inFlightBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		outcome, err = o.idem.Begin(ctx, accountID, idemKey, fingerprint)
		if err != nil {
			return err
		}
		if outcome.Kind == repository.IdempotencyInFlight {
			// No point waiting on a record this request could never replay.
			if outcome.RequestHash != "" && outcome.RequestHash != fingerprint {
				return ErrIdempotencyMismatch
			}
			return retry.RetryableError(errStillInFlight)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errStillInFlight):
			return outcome, ErrRequestInFlight
		case errors.Is(err, ErrIdempotencyMismatch):
			return outcome, ErrIdempotencyMismatch
		default:
			return outcome, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return outcome, nil
}

// requestFingerprint binds an idempotency record to the payload that created
// it. Hashed over the decoded request, so equivalent encodings of the same
// request fingerprint identically.
func requestFingerprint(v any) string {
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (o *Orchestrator) checkRate(ctx context.Context, key *model.APIKey) error {
	allowed, err := o.limiter.Allow(ctx, key.KeyID, key.Limits.RateLimitPerMinute)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func (o *Orchestrator) checkQuota(ctx context.Context, key *model.APIKey) error {
	verdict, err := o.quota.IncrementAndCheck(ctx, key.KeyID, key.Limits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch verdict {
	case repository.QuotaDailyExceeded:
		return ErrDailyQuotaExceeded
	case repository.QuotaMonthlyExceeded:
		return ErrMonthlyQuotaExceeded
	}
	return nil
}

// finish resolves the reservation with the committed transaction and
// publishes the event. A resolve failure leaves the ledger committed and the
// reservation unresolved; the success response is still returned and a retry
// reconciles through the ledger's identifier guard.
func (o *Orchestrator) finish(ctx context.Context, res repository.Reservation, txn *model.Transaction, statusCode int) (*WriteResult, error) {
	body, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	if err := o.idem.Resolve(ctx, res, txn.TransactionID, body, statusCode); err != nil {
		slog.Warn("idempotency resolution failed after ledger commit; will reconcile on retry",
			"account_id", res.AccountID,
			"idempotency_key", res.Key,
			"transaction_id", txn.TransactionID,
			"error", err,
		)
	}

	o.publish(txn)

	return &WriteResult{
		Transaction: txn,
		StatusCode:  statusCode,
		Body:        body,
	}, nil
}

// resolveConflict stores a conflict outcome under the reservation so
// duplicate submissions of the same key replay the same rejection.
func (o *Orchestrator) resolveConflict(ctx context.Context, res repository.Reservation, transactionID string) error {
	body, _ := json.Marshal(map[string]string{
		"error": fmt.Sprintf("transaction %q already exists", transactionID),
	})
	if err := o.idem.Resolve(ctx, res, "", body, http.StatusConflict); err != nil {
		slog.Warn("failed to resolve conflict outcome",
			"account_id", res.AccountID,
			"idempotency_key", res.Key,
			"error", err,
		)
	}
	return fmt.Errorf("%w: transaction %q", ErrConflict, transactionID)
}

func (o *Orchestrator) release(ctx context.Context, res repository.Reservation) {
	if err := o.idem.Release(ctx, res); err != nil {
		slog.Warn("failed to release idempotency reservation",
			"account_id", res.AccountID,
			"idempotency_key", res.Key,
			"error", err,
		)
	}
}

func (o *Orchestrator) publish(txn *model.Transaction) {
	event := model.TransactionEvent{
		TransactionID: txn.TransactionID,
		AccountID:     txn.AccountID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		CreatedAt:     txn.CreatedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := o.bus.Publish(repository.TopicTransactionCreated, data); err != nil {
		slog.Warn("failed to publish transaction event",
			"transaction_id", txn.TransactionID, "error", err)
	}
}

func replay(stored *model.StoredResponse) *WriteResult {
	return &WriteResult{
		StatusCode: stored.StatusCode,
		Body:       stored.Body,
		Replayed:   true,
	}
}
