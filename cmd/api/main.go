package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/expensetracker/internal/app/migrate"
	httpx "github.com/splax/expensetracker/internal/http"
	"github.com/splax/expensetracker/internal/repository"
	"github.com/splax/expensetracker/internal/repository/postgres"
	"github.com/splax/expensetracker/internal/repository/sqlite"
	"github.com/splax/expensetracker/internal/service/auth"
	"github.com/splax/expensetracker/internal/service/expense"
	"github.com/splax/expensetracker/pkg/config"
	jwtpkg "github.com/splax/expensetracker/pkg/jwt"
	"github.com/splax/expensetracker/pkg/logger"
)

type store interface {
	repository.UserRepository
	repository.ExpenseRepository
	repository.Pinger
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	tokens, err := jwtpkg.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Error("failed to configure tokens", "error", err)
		os.Exit(1)
	}

	authSvc := auth.New(repo, tokens, log)
	expenseSvc := expense.New(repo, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Dependencies{
		Logger:         log,
		Auth:           authSvc,
		Expenses:       expenseSvc,
		Limiter:        limiter,
		DBHealth:       repo.Ping,
		Diagnostics:    cfg.Diagnostics(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "driver", cfg.DatabaseDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore connects to the configured database and applies pending
// migrations before returning the repository.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (store, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		conn, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := migrateUp(ctx, conn, cfg, log); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return sqlite.New(conn), func() { conn.Close() }, nil
	default:
		conn, err := migrate.OpenDB(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		err = migrateUp(ctx, conn, cfg, log)
		conn.Close()
		if err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		return postgres.New(pool), pool.Close, nil
	}
}

func migrateUp(ctx context.Context, conn *sql.DB, cfg config.APIConfig, log *slog.Logger) error {
	runner, err := migrate.New(conn, cfg.DatabaseDriver, cfg.MigrationsDir, log)
	if err != nil {
		return fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		return err
	}
	return runner.Ensure(ctx)
}
