package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"tally/internal/config"
	"tally/internal/model"
	"tally/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// keygen provisions an API key and prints the plaintext secret, the only
// time it is ever visible.
func main() {
	rate := flag.Int("rate", model.DefaultRateLimitPerMinute, "rate limit per minute")
	daily := flag.Int("daily", model.DefaultDailyQuota, "daily request quota")
	monthly := flag.Int("monthly", model.DefaultMonthlyQuota, "monthly request quota")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer db.Close()

	limits := model.KeyLimits{
		RateLimitPerMinute: *rate,
		DailyQuota:         *daily,
		MonthlyQuota:       *monthly,
	}

	key, secret, err := repository.NewAPIKeyStore(db).Create(ctx, limits)
	if err != nil {
		log.Fatalf("Key creation error: %v", err)
	}

	fmt.Printf("key_id:  %s\n", key.KeyID)
	fmt.Printf("secret:  %s\n", secret)
	fmt.Printf("limits:  %d/min, %d/day, %d/month\n",
		limits.RateLimitPerMinute, limits.DailyQuota, limits.MonthlyQuota)
	fmt.Println("Store the secret now; it is not recoverable.")
}
