package repository

import (
	"strings"
	"testing"
	"time"
)

func TestRecordVisible(t *testing.T) {
	created := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	expires := created.Add(24 * time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"freshly written", created.Add(time.Second), true},
		{"one hour before expiry", expires.Add(-time.Hour), true},
		{"exactly at expiry", expires, false},
		{"one hour past expiry", expires.Add(time.Hour), false},
		{"a day past expiry", created.Add(25 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recordVisible(expires, tt.now); got != tt.want {
				t.Errorf("recordVisible(%v, %v) = %v, want %v", expires, tt.now, got, tt.want)
			}
		})
	}
}

func TestAbandonCutoff(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	cutoff := abandonCutoff(now)

	// A reservation is eligible for takeover when created_at <= cutoff,
	// mirroring the reservation upsert's takeover arm.
	tests := []struct {
		name      string
		createdAt time.Time
		abandoned bool
	}{
		{"created just now", now, false},
		{"created 30s ago", now.Add(-30 * time.Second), false},
		{"created exactly 60s ago", now.Add(-reservationAbandonAfter), true},
		{"created 61s ago", now.Add(-61 * time.Second), true},
		{"created five minutes ago", now.Add(-5 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := !tt.createdAt.After(cutoff); got != tt.abandoned {
				t.Errorf("created_at %v vs cutoff %v: abandoned = %v, want %v",
					tt.createdAt, cutoff, got, tt.abandoned)
			}
		})
	}
}

// The reservation upsert's only takeover arm must be the abandoned
// in-progress one. Expired rows are handled by the purge statement, never by
// the upsert; letting the upsert claim them would resurrect resolved records
// as resumed reservations.
func TestReserveTakeoverLimitedToAbandonedInProgress(t *testing.T) {
	start := strings.Index(beginQuery, "WHERE")
	end := strings.Index(beginQuery, "RETURNING")
	if start < 0 || end < 0 || start > end {
		t.Fatalf("reservation upsert missing WHERE/RETURNING clauses:\n%s", beginQuery)
	}
	clause := beginQuery[start:end]

	if !strings.Contains(clause, "idempotency_keys.status = 'in_progress'") {
		t.Errorf("takeover arm must require an in-progress row, got: %s", clause)
	}
	if strings.Contains(clause, "expires_at") {
		t.Errorf("takeover arm must not match on expiry, got: %s", clause)
	}
	if !strings.Contains(purgeQuery, "expires_at <=") {
		t.Errorf("expired rows must be removed by the purge statement, got: %s", purgeQuery)
	}
}

// Stored responses replay byte for byte, so the column holding them must not
// re-serialize its contents the way JSONB does.
func TestIdempotencySchemaStoresResponseBytesVerbatim(t *testing.T) {
	ddl, err := embedMigrations.ReadFile("migrations/00004_idempotency_keys.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}

	var column string
	for _, line := range strings.Split(string(ddl), "\n") {
		if strings.Contains(line, "response_body") {
			column = line
			break
		}
	}
	if column == "" {
		t.Fatalf("response_body column not found in migration:\n%s", ddl)
	}
	if !strings.Contains(column, "BYTEA") {
		t.Errorf("response_body must be BYTEA, got: %s", column)
	}
}
