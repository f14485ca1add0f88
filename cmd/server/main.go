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
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"github.com/mr-cto/rapiddatachat/internal/api"
	"github.com/mr-cto/rapiddatachat/internal/app"
	"github.com/mr-cto/rapiddatachat/internal/config"
	internaldb "github.com/mr-cto/rapiddatachat/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metastore: single-writer pool plus a read pool over the same file.
	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 0)
	if err != nil {
		return fmt.Errorf("open metastore: %w", err)
	}
	defer writeDB.Close() //nolint:errcheck
	defer readDB.Close()  //nolint:errcheck

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("migrate metastore: %w", err)
	}

	// Row store: DuckDB file, or in-memory when unset (development).
	rowDB, err := sql.Open("duckdb", cfg.RowDBPath)
	if err != nil {
		return fmt.Errorf("open row store: %w", err)
	}
	defer rowDB.Close() //nolint:errcheck

	application, err := app.New(ctx, app.Deps{
		Cfg:     cfg,
		WriteDB: writeDB,
		ReadDB:  readDB,
		RowDB:   rowDB,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}

	if err := application.Engine.EnsureRowStore(ctx); err != nil {
		return err
	}

	// Dead-letter sweep on the configured schedule.
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.SweepSchedule, func() {
		if _, err := application.Services.DeadLetters.ProcessDeadLetterQueue(context.Background()); err != nil {
			logger.Error("dead letter sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule dead letter sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.NewHandler(
		application.Services.Discovery,
		application.Services.Ask,
		application.Services.Query,
		application.Services.Merge,
		application.Services.SchemaTx,
		application.Services.DeadLetters,
		logger.With("component", "api"),
	)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
