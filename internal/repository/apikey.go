package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tally/internal/model"
)

var ErrKeyNotFound = errors.New("api key not found or inactive")

const apiKeyPrefix = "tl_live"

// APIKeyStore resolves caller credentials to a key id and its static limits.
// Only the sha256 hash of a secret is ever stored.
type APIKeyStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewAPIKeyStore(db *pgxpool.Pool) *APIKeyStore {
	return &APIKeyStore{db: db, now: time.Now}
}

// Create provisions a key with the given limits and returns the plaintext
// secret exactly once.
func (s *APIKeyStore) Create(ctx context.Context, limits model.KeyLimits) (*model.APIKey, string, error) {
	secret, hash, err := generateSecret()
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	key := &model.APIKey{
		KeyID:      "key_" + randomHex(8),
		SecretHash: hash,
		Active:     true,
		Limits:     limits,
		CreatedAt:  now,
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO api_keys (key_id, secret_hash, active, rate_limit_per_minute, daily_quota, monthly_quota, created_at)
		VALUES ($1, $2, TRUE, $3, $4, $5, $6)`,
		key.KeyID, key.SecretHash,
		limits.RateLimitPerMinute, limits.DailyQuota, limits.MonthlyQuota, now,
	)
	if err != nil {
		return nil, "", fmt.Errorf("api key insert: %w", err)
	}
	return key, secret, nil
}

// Authenticate resolves a raw secret to its key and limits. The last-used
// timestamp is touched best-effort.
func (s *APIKeyStore) Authenticate(ctx context.Context, rawSecret string) (*model.APIKey, error) {
	hash := hashSecret(rawSecret)

	var key model.APIKey
	var lastUsed *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT key_id, active, rate_limit_per_minute, daily_quota, monthly_quota, last_used_at, created_at
		FROM api_keys
		WHERE secret_hash = $1 AND active`,
		hash,
	).Scan(&key.KeyID, &key.Active,
		&key.Limits.RateLimitPerMinute, &key.Limits.DailyQuota, &key.Limits.MonthlyQuota,
		&lastUsed, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("api key lookup: %w", err)
	}
	if lastUsed != nil {
		key.LastUsedAt = *lastUsed
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE key_id = $1`,
		key.KeyID, s.now().UTC(),
	); err != nil {
		slog.Warn("failed to touch api key last_used_at", "key_id", key.KeyID, "error", err)
	}
	return &key, nil
}

func generateSecret() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	secret := fmt.Sprintf("%s_%s", apiKeyPrefix, hex.EncodeToString(buf))
	return secret, hashSecret(secret), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
