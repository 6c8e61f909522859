package model

import "time"

// Default limits assigned to keys created without explicit ones.
const (
	DefaultRateLimitPerMinute = 60
	DefaultDailyQuota         = 10_000
	DefaultMonthlyQuota       = 300_000
)

// KeyLimits are static configuration attributes of an API key, resolved by
// the auth layer before the core pipeline runs.
type KeyLimits struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	DailyQuota         int `json:"daily_quota"`
	MonthlyQuota       int `json:"monthly_quota"`
}

func DefaultKeyLimits() KeyLimits {
	return KeyLimits{
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		DailyQuota:         DefaultDailyQuota,
		MonthlyQuota:       DefaultMonthlyQuota,
	}
}

// APIKey identifies a caller. Only the sha256 hash of the secret is stored.
type APIKey struct {
	KeyID      string    `json:"key_id"`
	SecretHash string    `json:"-"`
	Active     bool      `json:"active"`
	Limits     KeyLimits `json:"limits"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageStats reports consumption against a key's quotas.
type UsageStats struct {
	Today            int `json:"today"`
	ThisMonth        int `json:"this_month"`
	DailyRemaining   int `json:"daily_remaining"`
	MonthlyRemaining int `json:"monthly_remaining"`
}

// Usage is the payload of the usage endpoint.
type Usage struct {
	KeyID  string     `json:"key_id"`
	Limits KeyLimits  `json:"limits"`
	Usage  UsageStats `json:"usage"`
}

// NewUsageStats clamps remaining allocations at zero: consumption may
// overshoot a cap because exceeding attempts still count.
func NewUsageStats(today, thisMonth int, limits KeyLimits) UsageStats {
	return UsageStats{
		Today:            today,
		ThisMonth:        thisMonth,
		DailyRemaining:   max(limits.DailyQuota-today, 0),
		MonthlyRemaining: max(limits.MonthlyQuota-thisMonth, 0),
	}
}
