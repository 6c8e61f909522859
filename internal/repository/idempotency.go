package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tally/internal/model"
)

// How long an unresolved reservation may sit before a retry with the same
// key is allowed to take it over. Keeps an abandoned reservation (caller
// crashed between ledger write and resolve) from blocking retries until the
// record's TTL runs out.
const reservationAbandonAfter = time.Minute

type IdempotencyKind int

const (
	// IdempotencyFresh: no live record existed, a reservation was taken and
	// the caller must execute the request and resolve it.
	IdempotencyFresh IdempotencyKind = iota
	// IdempotencyExisting: a resolved record exists, replay it verbatim.
	IdempotencyExisting
	// IdempotencyInFlight: an identical request holds an unresolved
	// reservation, the caller should retry shortly.
	IdempotencyInFlight
)

// Reservation identifies a pending idempotency record held by a caller.
type Reservation struct {
	AccountID string
	Key       string
}

// IdempotencyOutcome forces callers to handle all three begin results.
type IdempotencyOutcome struct {
	Kind        IdempotencyKind
	Reservation Reservation
	// Resumed is set on a Fresh outcome when the reservation was taken over
	// from an abandoned in-flight attempt rather than newly created. A
	// ledger identifier conflict under a resumed reservation means the
	// previous attempt committed, and the stored result must be reconciled
	// from the ledger. Expired records never produce a resumed reservation:
	// they are purged first and behave exactly like absent ones.
	Resumed bool
	// RequestHash is the fingerprint bound to the blocking record on an
	// Existing or InFlight outcome, so callers can reject a key reused with
	// a different payload.
	RequestHash string
	// Stored is set on an Existing outcome.
	Stored *model.StoredResponse
}

var ErrReservationNotFound = errors.New("idempotency reservation not found")

// IdempotencyStore maps (account, client idempotency key) to a previously
// produced outcome. Records expire after a TTL and expired rows are invisible
// to lookups even before the reaper removes them.
type IdempotencyStore struct {
	db  *pgxpool.Pool
	ttl time.Duration
	now func() time.Time
}

func NewIdempotencyStore(db *pgxpool.Pool, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}
}

// purgeQuery removes an expired record for the key before a reservation is
// attempted, so a post-TTL resubmission is a brand-new request rather than a
// takeover of the dead row.
const purgeQuery = `
DELETE FROM idempotency_keys
WHERE account_id = $1 AND idem_key = $2 AND expires_at <= $3`

// beginQuery reserves the (account, key) row. The only takeover arm is an
// abandoned unresolved reservation; a live row, resolved or in flight, is
// never clobbered. xmax = 0 distinguishes a brand-new insert from a takeover.
const beginQuery = `
INSERT INTO idempotency_keys (account_id, idem_key, request_hash, status, created_at, expires_at)
VALUES ($1, $2, $3, 'in_progress', $4, $5)
ON CONFLICT (account_id, idem_key) DO UPDATE
SET status = 'in_progress',
    request_hash = EXCLUDED.request_hash,
    transaction_id = NULL,
    response_status = NULL,
    response_body = NULL,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at
WHERE idempotency_keys.status = 'in_progress' AND idempotency_keys.created_at <= $6
RETURNING (xmax = 0)`

const lookupQuery = `
SELECT status, request_hash, transaction_id, response_status, response_body, expires_at
FROM idempotency_keys
WHERE account_id = $1 AND idem_key = $2`

// Begin returns Fresh with a reservation, Existing with the stored response,
// or InFlight when a concurrent identical request has not resolved yet.
// requestHash fingerprints the payload so a key reused with a different one
// can be rejected by the caller.
func (s *IdempotencyStore) Begin(ctx context.Context, accountID, key, requestHash string) (IdempotencyOutcome, error) {
	now := s.now().UTC()
	res := Reservation{AccountID: accountID, Key: key}

	if _, err := s.db.Exec(ctx, purgeQuery, accountID, key, now); err != nil {
		return IdempotencyOutcome{}, fmt.Errorf("idempotency purge: %w", err)
	}

	var inserted bool
	err := s.db.QueryRow(ctx, beginQuery,
		accountID, key, requestHash, now, now.Add(s.ttl), abandonCutoff(now),
	).Scan(&inserted)
	if err == nil {
		return IdempotencyOutcome{
			Kind:        IdempotencyFresh,
			Reservation: res,
			Resumed:     !inserted,
		}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyOutcome{}, fmt.Errorf("idempotency reserve: %w", err)
	}

	// A live row blocked the reservation: either a resolved record to
	// replay, or an in-flight request.
	var (
		status        string
		storedHash    string
		transactionID *string
		respStatus    *int
		respBody      []byte
		expiresAt     time.Time
	)
	err = s.db.QueryRow(ctx, lookupQuery, accountID, key).
		Scan(&status, &storedHash, &transactionID, &respStatus, &respBody, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// The blocking row was reclaimed between the two statements. Let the
		// caller's bounded retry take the reservation on the next attempt.
		return IdempotencyOutcome{Kind: IdempotencyInFlight, Reservation: res}, nil
	}
	if err != nil {
		return IdempotencyOutcome{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	if !recordVisible(expiresAt, now) {
		// Expired rows are treated as absent even before physical deletion.
		return IdempotencyOutcome{Kind: IdempotencyInFlight, Reservation: res}, nil
	}

	if status != "completed" {
		return IdempotencyOutcome{Kind: IdempotencyInFlight, Reservation: res, RequestHash: storedHash}, nil
	}

	stored := &model.StoredResponse{Body: respBody}
	if transactionID != nil {
		stored.TransactionID = *transactionID
	}
	if respStatus != nil {
		stored.StatusCode = *respStatus
	}
	return IdempotencyOutcome{
		Kind:        IdempotencyExisting,
		Reservation: res,
		RequestHash: storedHash,
		Stored:      stored,
	}, nil
}

// Resolve records the outcome for a reservation. Once resolved the record is
// read-only until its TTL removes it.
func (s *IdempotencyStore) Resolve(ctx context.Context, res Reservation, transactionID string, body []byte, statusCode int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = 'completed', transaction_id = $3, response_status = $4, response_body = $5
		WHERE account_id = $1 AND idem_key = $2 AND status = 'in_progress'`,
		res.AccountID, res.Key, nullable(transactionID), statusCode, body,
	)
	if err != nil {
		return fmt.Errorf("idempotency resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// Release drops an unresolved reservation so an immediate retry is treated
// as fresh. Used when the request is rejected before any side effect.
func (s *IdempotencyStore) Release(ctx context.Context, res Reservation) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE account_id = $1 AND idem_key = $2 AND status = 'in_progress'`,
		res.AccountID, res.Key,
	)
	if err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

// Reap physically deletes rows past their TTL. Safe to run concurrently with
// live traffic: it only touches rows a time comparison proves stale, which
// lookups already treat as absent.
func (s *IdempotencyStore) Reap(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("idempotency reap: %w", err)
	}
	return tag.RowsAffected(), nil
}

// abandonCutoff is the newest created_at an unresolved reservation may carry
// and still count as abandoned.
func abandonCutoff(now time.Time) time.Time {
	return now.Add(-reservationAbandonAfter)
}

// recordVisible reports whether a record is still live at now. A record at
// exactly its expiry instant is already dead.
func recordVisible(expiresAt, now time.Time) bool {
	return expiresAt.After(now)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
