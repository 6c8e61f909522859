package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reapedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tally_idempotency_reaped_rows_total",
	Help: "Idempotency records physically deleted after TTL expiry",
})

// Reaper reclaims rows proven stale by a time comparison. Expired records
// are already invisible to lookups, so the reaper only frees space and is
// safe to run concurrently with live traffic. Rate-window counters reclaim
// themselves through Redis key TTLs.
type Reaper struct {
	store    ExpiryStore
	interval time.Duration
}

// ExpiryStore reclaims records past their TTL, returning how many went.
type ExpiryStore interface {
	Reap(ctx context.Context) (int64, error)
}

func NewReaper(store ExpiryStore, interval time.Duration) *Reaper {
	return &Reaper{store: store, interval: interval}
}

// Start reaps on a fixed schedule until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("idempotency reaper is running", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reaped, err := r.store.Reap(ctx)
			if err != nil {
				slog.Error("reaper: failed to reclaim expired records", "error", err)
				continue
			}
			if reaped > 0 {
				reapedRowsTotal.Add(float64(reaped))
				slog.Info("reaper: reclaimed expired idempotency records", "count", reaped)
			}
		}
	}
}

func (r *Reaper) Stop(ctx context.Context) error {
	return nil
}
