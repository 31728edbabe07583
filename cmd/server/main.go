package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/predikt/prediction-engine/internal/allowance"
	"github.com/predikt/prediction-engine/internal/api"
	"github.com/predikt/prediction-engine/internal/event"
	"github.com/predikt/prediction-engine/internal/ledger"
	"github.com/predikt/prediction-engine/internal/metrics"
	"github.com/predikt/prediction-engine/internal/odds"
	"github.com/predikt/prediction-engine/internal/prediction"
	"github.com/predikt/prediction-engine/internal/store"
	"github.com/predikt/prediction-engine/internal/worker"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Odds provider ---
	// Without an API key the engine still runs: predictions settle at the
	// event multiplier and cashout is unavailable.
	var provider odds.Provider
	if apiKey := os.Getenv("ODDS_API_KEY"); apiKey != "" {
		baseURL := os.Getenv("ODDS_API_BASE_URL")
		if baseURL == "" {
			baseURL = "https://api.the-odds-api.com"
		}
		provider = odds.NewClient(baseURL, apiKey)

		// Wrap with a Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			provider = odds.NewCachedProvider(provider, rdb, envDuration("ODDS_CACHE_TTL", 30*time.Second))
			slog.Info("Redis odds cache enabled")
		}
		slog.Info("odds provider configured", "base_url", baseURL)
	} else {
		slog.Warn("ODDS_API_KEY not set, running without live prices")
	}

	// --- Ledgers and services ---
	tokens := ledger.NewTokenLedger(st)
	points := ledger.NewPointsLedger(st)

	allowanceCfg := allowance.Config{
		DailyGrant:   envInt64("DAILY_ALLOWANCE", allowance.DefaultConfig().DailyGrant),
		MaxAllowance: envInt64("MAX_ALLOWANCE", allowance.DefaultConfig().MaxAllowance),
	}
	allowances := allowance.NewManager(st, tokens, allowanceCfg)

	hub := api.NewHub()
	go hub.Run()

	events := event.NewService(st, points, tokens, hub)

	predictionCfg := prediction.Config{
		MinStake: envInt64("MIN_STAKE", prediction.DefaultConfig().MinStake),
		MaxStake: envInt64("MAX_STAKE", prediction.DefaultConfig().MaxStake),
	}
	predictions := prediction.NewService(st, tokens, points, allowances, provider, predictionCfg)

	// --- Background workers ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var settler *worker.Settler
	if provider != nil {
		settler = worker.NewSettler(st, events, provider, int(envInt64("SETTLEMENT_BATCH", 50)))
		go settler.Start(workerCtx, envDuration("SETTLEMENT_INTERVAL", time.Minute))

		refresher := worker.NewRefresher(st, provider, hub)
		go refresher.Start(workerCtx, envDuration("ODDS_REFRESH_INTERVAL", 2*time.Minute))
	} else {
		slog.Warn("no odds provider, settlement and odds workers disabled")
	}

	// --- HTTP router ---
	handler := api.NewHandler(st, tokens, points, allowances, events, predictions, settler, hub,
		envInt64("SIGNUP_BONUS", 500))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"prediction-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", handler.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("prediction-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopWorkers()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down prediction-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("prediction-engine stopped")
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", raw)
		return fallback
	}
	return d
}
