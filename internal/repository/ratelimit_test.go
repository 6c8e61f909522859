package repository

import (
	"testing"
	"time"
)

func TestWindowStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"mid-minute truncates down",
			time.Date(2025, 6, 15, 12, 30, 45, 999, time.UTC),
			time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC),
		},
		{
			"exact boundary is its own window",
			time.Date(2025, 6, 15, 12, 31, 0, 0, time.UTC),
			time.Date(2025, 6, 15, 12, 31, 0, 0, time.UTC),
		},
		{
			"non-UTC input lands in the UTC window",
			time.Date(2025, 6, 15, 14, 30, 59, 0, time.FixedZone("CEST", 2*3600)),
			time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := windowStart(tt.in); !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowStartDistinguishesAdjacentWindows(t *testing.T) {
	a := windowStart(time.Date(2025, 6, 15, 12, 30, 59, 0, time.UTC))
	b := windowStart(time.Date(2025, 6, 15, 12, 31, 0, 0, time.UTC))
	if a.Equal(b) {
		t.Error("requests a second apart across the boundary must count in different windows")
	}
	if rateKey("key_1", a) == rateKey("key_1", b) {
		t.Error("adjacent windows must produce distinct counter keys")
	}
}

func TestRateKeyIsPerKey(t *testing.T) {
	window := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	if rateKey("key_1", window) == rateKey("key_2", window) {
		t.Error("different API keys must have independent counters")
	}
	want := "ratelimit:key_1:1749990600"
	if got := rateKey("key_1", window); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
