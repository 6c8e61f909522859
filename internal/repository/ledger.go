package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tally/internal/model"
)

var (
	ErrDuplicateTransaction = errors.New("transaction identifier already exists")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrNotReversible        = errors.New("transaction cannot be reversed")
	ErrAlreadyReversed      = errors.New("transaction already reversed")
)

// pg error codes used for conditional-write guards.
const (
	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
)

// LedgerStore is the append-mostly record of transactions. Balances are
// always derived from it, never stored.
type LedgerStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db, now: time.Now}
}

const transactionColumns = `
	transaction_id, account_id, transaction_type, status, amount, currency,
	description, metadata, failure_reason, reverses, occurred_at, created_at, updated_at`

// Create inserts a transaction, insert-if-absent. On an identifier collision
// it returns the existing record together with ErrDuplicateTransaction and
// leaves the ledger untouched, closing the race between concurrent retries.
func (s *LedgerStore) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING `+transactionColumns,
		txn.TransactionID, txn.AccountID, txn.Type, txn.Status, txn.Amount,
		txn.Currency, nullable(txn.Description), txn.Metadata,
		nullable(string(txn.FailureReason)), nullable(txn.Reverses),
		txn.OccurredAt, txn.CreatedAt, txn.UpdatedAt,
	)

	created, err := scanTransaction(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgFKViolation {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("transaction insert: %w", err)
	}

	// Insert was a no-op: the identifier is taken. Surface the existing
	// record so the orchestrator can reconcile.
	existing, getErr := s.Get(ctx, txn.TransactionID)
	if getErr != nil {
		return nil, fmt.Errorf("transaction conflict lookup: %w", getErr)
	}
	return existing, ErrDuplicateTransaction
}

func (s *LedgerStore) Get(ctx context.Context, transactionID string) (*model.Transaction, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`,
		transactionID,
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transaction get: %w", err)
	}
	return txn, nil
}

// ListByAccount pages through an account's transactions, newest first, with
// optional status and type filters.
func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, filters model.ListFilters, page model.PageRequest) (*model.Page, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1`)
	args := []any{accountID}

	if filters.Status != "" {
		args = append(args, filters.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if filters.Type != "" {
		args = append(args, filters.Type)
		fmt.Fprintf(&sb, " AND transaction_type = $%d", len(args))
	}
	if page.Cursor != "" {
		cursorTime, cursorID, err := page.Cursor.Decode()
		if err != nil {
			return nil, err
		}
		args = append(args, cursorTime, cursorID)
		fmt.Fprintf(&sb, " AND (created_at, transaction_id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, page.Limit+1)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, transaction_id DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("transaction list: %w", err)
	}
	defer rows.Close()

	var items []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("transaction list scan: %w", err)
		}
		items = append(items, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transaction list: %w", err)
	}

	result := &model.Page{Data: items, HasMore: len(items) > page.Limit}
	if result.HasMore {
		result.Data = items[:page.Limit]
		last := result.Data[len(result.Data)-1]
		result.NextCursor = model.NewCursor(last.CreatedAt, last.TransactionID)
	}
	if result.Data == nil {
		result.Data = []model.Transaction{}
	}
	return result, nil
}

// Balance derives the account balance as a pure fold over the ledger: the
// per-type effect table in the model package is the single source of truth
// for the sign of each contribution. Accounts are assumed single-currency:
// amounts fold into one signed total and the reported currency is whichever
// the ledger rows carry, defaulting to USD for an empty account.
func (s *LedgerStore) Balance(ctx context.Context, accountID string) (*model.Balance, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE account_id = $1)`, accountID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("balance account check: %w", err)
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	rows, err := s.db.Query(ctx, `
		SELECT transaction_type, status, COALESCE(SUM(amount), 0), MIN(currency)
		FROM transactions
		WHERE account_id = $1
		GROUP BY transaction_type, status`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("balance query: %w", err)
	}
	defer rows.Close()

	balance := &model.Balance{AccountID: accountID, Currency: "USD"}
	for rows.Next() {
		var (
			txnType  model.TransactionType
			status   model.TransactionStatus
			total    int64
			currency string
		)
		if err := rows.Scan(&txnType, &status, &total, &currency); err != nil {
			return nil, fmt.Errorf("balance scan: %w", err)
		}
		balance.Balance += model.BalanceContribution(txnType, status, total)
		if currency != "" {
			balance.Currency = currency
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("balance query: %w", err)
	}
	return balance, nil
}

// Reverse appends a reversal entry referencing the original and moves the
// original to reversed, in one transaction. The unique index on reverses is
// the conditional-write guard against a double reversal.
func (s *LedgerStore) Reverse(ctx context.Context, originalID, reversalID string) (*model.Transaction, error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("reverse tx begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE transaction_id = $1 FOR UPDATE`,
		originalID,
	)
	original, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reverse lookup: %w", err)
	}

	if original.Status == model.StatusReversed {
		return nil, ErrAlreadyReversed
	}
	if !model.CanTransition(original.Status, model.StatusReversed) {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReversible, original.Status)
	}
	if model.EffectOf(original.Type) != model.EffectCredit {
		return nil, fmt.Errorf("%w: %s transactions cannot be reversed", ErrNotReversible, original.Type)
	}

	reversal := &model.Transaction{
		TransactionID: reversalID,
		AccountID:     original.AccountID,
		Type:          model.TypeReversal,
		Status:        model.StatusSucceeded,
		Amount:        original.Amount,
		Currency:      original.Currency,
		Reverses:      original.TransactionID,
		OccurredAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		reversal.TransactionID, reversal.AccountID, reversal.Type, reversal.Status,
		reversal.Amount, reversal.Currency, nil, nil, nil, reversal.Reverses,
		reversal.OccurredAt, reversal.CreatedAt, reversal.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == "transactions_reverses_key" {
				return nil, ErrAlreadyReversed
			}
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("reversal insert: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE transactions SET status = $2, updated_at = $3 WHERE transaction_id = $1`,
		originalID, model.StatusReversed, now,
	)
	if err != nil {
		return nil, fmt.Errorf("reverse status update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("reverse tx commit: %w", err)
	}
	return reversal, nil
}

// RecordEvent appends a transaction event to the audit table. Duplicate
// deliveries from the bus are dropped on the primary key.
func (s *LedgerStore) RecordEvent(ctx context.Context, event model.TransactionEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transaction_events (transaction_id, account_id, transaction_type, status, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id) DO NOTHING`,
		event.TransactionID, event.AccountID, event.Type, event.Status,
		event.Amount, event.Currency, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("event insert: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		txn           model.Transaction
		description   *string
		metadata      json.RawMessage
		failureReason *string
		reverses      *string
	)
	err := row.Scan(
		&txn.TransactionID, &txn.AccountID, &txn.Type, &txn.Status, &txn.Amount,
		&txn.Currency, &description, &metadata, &failureReason, &reverses,
		&txn.OccurredAt, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		txn.Description = *description
	}
	txn.Metadata = metadata
	if failureReason != nil {
		txn.FailureReason = model.FailureReason(*failureReason)
	}
	if reverses != nil {
		txn.Reverses = *reverses
	}
	return &txn, nil
}
