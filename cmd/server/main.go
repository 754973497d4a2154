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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stocksim/trading-engine/internal/auth"
	"github.com/stocksim/trading-engine/internal/config"
	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/pricefeed"
	"github.com/stocksim/trading-engine/internal/risk"
	"github.com/stocksim/trading-engine/internal/store"
	"github.com/stocksim/trading-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Stock master list ---
	if cfg.SeedStocks {
		if err := pricefeed.SeedStocks(context.Background(), st); err != nil {
			slog.Error("stock seeding failed", "err", err)
			os.Exit(1)
		}
	}

	// --- WebSocket hub + price ticker ---
	hub := pricefeed.NewHub()
	go hub.Run()

	tickCtx, stopTicker := context.WithCancel(context.Background())
	defer stopTicker()
	ticker := pricefeed.NewTicker(st, hub, cfg.TickInterval)
	go ticker.Run(tickCtx)

	// --- Settlement engine + HTTP services ---
	oracle := pricefeed.NewStoreOracle(st)
	engine := trade.NewEngine(st, oracle)
	limiter := risk.NewExposureLimiter(cfg.MaxSymbolExposure, cfg.MaxSectorExposure)
	if limiter.Enabled() {
		engine.WithLimiter(limiter)
		slog.Info("exposure limits enabled",
			"max_symbol", cfg.MaxSymbolExposure.String(),
			"max_sector", cfg.MaxSectorExposure.String(),
		)
	}
	tradeSvc := trade.NewService(engine)
	feedSvc := pricefeed.NewService(st)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
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
		w.Write([]byte(`{"status":"ok","service":"trading-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price ticks.
		r.Get("/ws", hub.HandleWS)

		// Market data.
		r.Get("/stocks", feedSvc.ListStocks)
		r.Get("/stocks/{symbol}/quote", feedSvc.GetQuote)

		// Account-scoped routes.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			// Trade execution.
			r.Post("/trade/buy", tradeSvc.Buy)
			r.Post("/trade/sell", tradeSvc.Sell)
			r.Get("/trade/orders", tradeSvc.Orders)

			// Portfolio queries.
			r.Get("/portfolio", tradeSvc.Portfolio)
			r.Get("/portfolio/detail", tradeSvc.PortfolioDetail)
			r.Get("/pnl/realized", tradeSvc.RealizedPnL)

			// Wallet.
			r.Post("/wallet/init", tradeSvc.InitWallet)
			r.Post("/wallet/credit", tradeSvc.Credit)
			r.Post("/wallet/debit", tradeSvc.Debit)
			r.Get("/wallet/balance", tradeSvc.Balance)
			r.Get("/wallet/transactions", tradeSvc.WalletTransactions)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trading-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopTicker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down trading-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trading-engine stopped")
}
