package infrastructure

import (
	"context"

	"tally/internal/config"
	"tally/internal/repository"
	"tally/internal/service"
	transportHTTP "tally/internal/transport/http"
	transportNATS "tally/internal/transport/nats"
	"tally/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	// Stores
	idem := repository.NewIdempotencyStore(db, cfg.IdempotencyTTL)
	limiter := repository.NewRateLimiter(rdb)
	quota := repository.NewQuotaTracker(db)
	ledger := repository.NewLedgerStore(db)
	accounts := repository.NewAccountStore(db)
	keys := repository.NewAPIKeyStore(db)

	bus := transportNATS.NewBus(nc)
	svc := service.NewOrchestrator(idem, limiter, quota, ledger, accounts, bus)

	servers := []Server{
		transportHTTP.NewServer(cfg.ApiAddr(), svc, keys),
		worker.NewEventWorker(ledger, nc),
		worker.NewReaper(idem, cfg.ReapInterval),
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
