package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/btcguess/guess-engine/internal/api"
	"github.com/btcguess/guess-engine/internal/auth"
	"github.com/btcguess/guess-engine/internal/guess"
	"github.com/btcguess/guess-engine/internal/oracle"
	"github.com/btcguess/guess-engine/internal/sched"
	"github.com/btcguess/guess-engine/internal/score"
	"github.com/btcguess/guess-engine/internal/store"
	"github.com/btcguess/guess-engine/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info(".env file not found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := getEnv("PORT", "8080")

	// --- Stores ---
	var (
		guessStore store.GuessStore
		scoreStore store.ScoreStore
		userStore  store.UserStore
		cleanup    []func()
	)

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		if err := store.Migrate(context.Background(), pool); err != nil {
			slog.Error("migration failed", "err", err)
			os.Exit(1)
		}

		pg := store.NewPostgresStore(pool)
		guessStore, scoreStore, userStore = pg, pg, pg
		slog.Info("connected to PostgreSQL")

		// Wrap score reads with a Redis cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			scoreStore = store.NewCachedScoreStore(scoreStore, rdb, 30*time.Second)
			slog.Info("Redis score cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		mem := store.NewMemoryStore()
		guessStore, scoreStore, userStore = mem, mem, mem
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price oracle ---
	apiKey := os.Getenv("BTC_API_KEY")
	if apiKey == "" {
		slog.Warn("BTC_API_KEY not set, price fetches will fail")
	}
	prices := oracle.NewCMCClient(apiKey)

	// --- Services ---
	ledger := score.NewLedger(scoreStore, 0, 0) // default award/penalty
	engine := guess.NewService(guessStore, ledger, prices)
	authSvc := auth.NewService(userStore,
		getEnv("JWT_ACCESS_SECRET", "dev-access-secret"),
		getEnv("JWT_REFRESH_SECRET", "dev-refresh-secret"),
	)

	// --- WebSocket hub + price poller ---
	hub := ws.NewHub()
	go hub.Run()

	poller := ws.NewPricePoller(prices, hub, getDuration("PRICE_POLL_INTERVAL", 5*time.Second))
	go poller.Run()
	defer poller.Stop()

	// --- Validation scheduler ---
	scheduler := sched.New(guessStore, engine, hub,
		sched.WithSettlementDelay(getDuration("SETTLEMENT_DELAY", 60*time.Second)),
		sched.WithInterval(getDuration("SWEEP_INTERVAL", time.Second)),
	)
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	// --- HTTP server ---
	server := api.NewServer(engine, ledger, authSvc, hub, prices)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("guess-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down guess-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("guess-engine stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
