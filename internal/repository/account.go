package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tally/internal/model"
)

var ErrDuplicateAccount = errors.New("account identifier already exists")

type AccountStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewAccountStore(db *pgxpool.Pool) *AccountStore {
	return &AccountStore{db: db, now: time.Now}
}

// Create registers an account with a caller-assigned identifier,
// insert-if-absent.
func (s *AccountStore) Create(ctx context.Context, accountID string, metadata json.RawMessage) (*model.Account, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	now := s.now().UTC()

	row := s.db.QueryRow(ctx, `
		INSERT INTO accounts (account_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (account_id) DO NOTHING
		RETURNING account_id, metadata, created_at, updated_at`,
		accountID, metadata, now,
	)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicateAccount
	}
	if err != nil {
		return nil, fmt.Errorf("account insert: %w", err)
	}
	return account, nil
}

func (s *AccountStore) Get(ctx context.Context, accountID string) (*model.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT account_id, metadata, created_at, updated_at
		FROM accounts WHERE account_id = $1`,
		accountID,
	)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account get: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		account  model.Account
		metadata json.RawMessage
	)
	if err := row.Scan(&account.AccountID, &metadata, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	account.Metadata = metadata
	return &account, nil
}
