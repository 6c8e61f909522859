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

type QuotaVerdict int

const (
	QuotaWithin QuotaVerdict = iota
	QuotaDailyExceeded
	QuotaMonthlyExceeded
)

// QuotaTracker maintains one cumulative counter per API key per UTC calendar
// day. The monthly total is the sum of the month's daily rows.
type QuotaTracker struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewQuotaTracker(db *pgxpool.Pool) *QuotaTracker {
	return &QuotaTracker{db: db, now: time.Now}
}

// The upsert is the atomic increment; the sub-select covers the rest of the
// month. A data-modifying CTE is not visible to sub-selects in the same
// statement, so today's row is excluded there and the post-increment count
// from the CTE is added back in Go.
const quotaIncrementQuery = `
WITH bumped AS (
    INSERT INTO quota_usage (key_id, usage_date, request_count, updated_at)
    VALUES ($1, $2, 1, $3)
    ON CONFLICT (key_id, usage_date) DO UPDATE
    SET request_count = quota_usage.request_count + 1,
        updated_at = EXCLUDED.updated_at
    RETURNING request_count
)
SELECT b.request_count,
       (SELECT COALESCE(SUM(q.request_count), 0)
        FROM quota_usage q
        WHERE q.key_id = $1
          AND q.usage_date >= $4 AND q.usage_date < $5
          AND q.usage_date <> $2)
FROM bumped b`

// IncrementAndCheck durably counts the attempt, then checks daily before
// monthly. Exceeding a cap still consumes the slot, matching the rate
// limiter's policy.
func (q *QuotaTracker) IncrementAndCheck(ctx context.Context, keyID string, limits model.KeyLimits) (QuotaVerdict, error) {
	now := q.now().UTC()
	today := dateOf(now)
	monthStart, nextMonth := monthBounds(now)

	var dailyCount, restOfMonth int
	err := q.db.QueryRow(ctx, quotaIncrementQuery,
		keyID, today, now, monthStart, nextMonth,
	).Scan(&dailyCount, &restOfMonth)
	if err != nil {
		return QuotaWithin, fmt.Errorf("quota increment: %w", err)
	}

	if dailyCount > limits.DailyQuota {
		return QuotaDailyExceeded, nil
	}
	if dailyCount+restOfMonth > limits.MonthlyQuota {
		return QuotaMonthlyExceeded, nil
	}
	return QuotaWithin, nil
}

// Usage reports today's and this month's consumption for a key.
func (q *QuotaTracker) Usage(ctx context.Context, keyID string, limits model.KeyLimits) (model.UsageStats, error) {
	now := q.now().UTC()
	today := dateOf(now)
	monthStart, nextMonth := monthBounds(now)

	var todayCount int
	err := q.db.QueryRow(ctx,
		`SELECT request_count FROM quota_usage WHERE key_id = $1 AND usage_date = $2`,
		keyID, today,
	).Scan(&todayCount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.UsageStats{}, fmt.Errorf("quota usage today: %w", err)
	}

	var monthCount int
	err = q.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(request_count), 0) FROM quota_usage
		 WHERE key_id = $1 AND usage_date >= $2 AND usage_date < $3`,
		keyID, monthStart, nextMonth,
	).Scan(&monthCount)
	if err != nil {
		return model.UsageStats{}, fmt.Errorf("quota usage month: %w", err)
	}

	return model.NewUsageStats(todayCount, monthCount, limits), nil
}

// dateOf truncates a time to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// monthBounds returns the first day of t's month and of the next month.
func monthBounds(t time.Time) (time.Time, time.Time) {
	y, m, _ := t.UTC().Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
