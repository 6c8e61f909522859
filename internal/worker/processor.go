package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sethvargo/go-retry"

	"tally/internal/model"
	"tally/internal/repository"
)

// EventRecorder persists transaction events; duplicate deliveries are
// dropped on the event's primary key.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event model.TransactionEvent) error
}

// EventWorker listens on the transactions.created topic and syncs events
// into the audit table.
type EventWorker struct {
	recorder EventRecorder
	natsConn *nats.Conn
}

func NewEventWorker(recorder EventRecorder, nc *nats.Conn) *EventWorker {
	return &EventWorker{recorder: recorder, natsConn: nc}
}

// Start subscribes and blocks until ctx is cancelled. QueueSubscribe ensures
// each event is handled by exactly one worker in the group even when several
// API instances run.
func (w *EventWorker) Start(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(repository.TopicTransactionCreated, "tally_workers", func(m *nats.Msg) {
		var event model.TransactionEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("worker: failed to unmarshal event", "error", err)
			return
		}

		// Transient store errors are retried with backoff before the event
		// is dropped.
		backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := w.recorder.RecordEvent(ctx, event); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			slog.Error("worker: failed to record transaction event",
				"transaction_id", event.TransactionID,
				"error", err,
			)
			return
		}

		slog.Info("worker: transaction event recorded",
			"transaction_id", event.TransactionID,
			"account_id", event.AccountID,
		)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe: %w", err)
	}

	slog.Info("transaction event worker is running")

	<-ctx.Done()

	slog.Info("worker received shutdown signal, draining subscription...")
	return sub.Drain()
}

func (w *EventWorker) Stop(ctx context.Context) error {
	return nil
}
