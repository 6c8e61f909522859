package repository

import (
	"testing"
	"time"
)

func TestDateOf(t *testing.T) {
	in := time.Date(2025, 2, 28, 23, 59, 59, 999999999, time.UTC)
	want := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	if got := dateOf(in); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// A local time near midnight must land on its UTC date.
	local := time.Date(2025, 3, 1, 1, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	want = time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	if got := dateOf(local); !got.Equal(want) {
		t.Errorf("local input: got %v, want %v", got, want)
	}
}

func TestMonthBounds(t *testing.T) {
	tests := []struct {
		name      string
		in        time.Time
		wantStart time.Time
		wantNext  time.Time
	}{
		{
			"mid-month",
			time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"december rolls into january",
			time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
			time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"leap february",
			time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, next := monthBounds(tt.in)
			if !start.Equal(tt.wantStart) {
				t.Errorf("start: got %v, want %v", start, tt.wantStart)
			}
			if !next.Equal(tt.wantNext) {
				t.Errorf("next: got %v, want %v", next, tt.wantNext)
			}
		})
	}
}
