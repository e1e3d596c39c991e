// Package main is the entry point for the openlot admin server. Runs on its
// own port and exposes operator-only endpoints behind an IP allowlist and RBAC.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/openlot/auction/internal/admin"
	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/lock"
	"github.com/openlot/auction/internal/repository"
	"github.com/openlot/auction/internal/service"
)

func main() {
	// ── Config + logger ───────────────────────────────────────────────────────
	_ = godotenv.Load()
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting openlot admin server",
		"env", cfg.Server.Env, "port", cfg.Server.AdminPort)

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	auctionRepo := repository.NewAuctionRepository(db)
	bidRepo := repository.NewBidRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	// The admin binary shares the API server's Redis lock namespace when
	// distributed locking is on, so admin cancels cannot interleave with bids.
	var locker lock.Locker
	if cfg.Lock.Distributed {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		locker = lock.NewRedisLocker(rdb, cfg.Lock.RetryInterval)
	} else {
		locker = lock.NewLocalLocker(cfg.Lock.RetryInterval)
	}

	authSvc := service.NewAuthService(userRepo, tokenRepo, cfg)
	categorySvc := service.NewCategoryService(categoryRepo)
	auctionSvc := service.NewAuctionService(auctionRepo, bidRepo, categoryRepo, locker, cfg, logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Router ────────────────────────────────────────────────────────────────
	router := admin.SetupAdminRouter(admin.AdminDeps{
		AuthSvc:     authSvc,
		AuctionSvc:  auctionSvc,
		CategorySvc: categorySvc,
		UserRepo:    userRepo,
		AuctionRepo: auctionRepo,
		BidRepo:     bidRepo,
		Hub:         nil, // the admin binary does not serve WS
		Cfg:         cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.AdminPort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("admin http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin shutdown error", "err", err)
	}

	db.Close()
	logger.Info("admin server stopped cleanly")
}
