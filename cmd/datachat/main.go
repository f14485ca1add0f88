// datachat is the operator CLI for the query core: migrations, manual
// dead-letter sweeps, and ad-hoc validated queries.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/mr-cto/rapiddatachat/internal/app"
	"github.com/mr-cto/rapiddatachat/internal/config"
	internaldb "github.com/mr-cto/rapiddatachat/internal/db"
	"github.com/mr-cto/rapiddatachat/internal/domain"
)

func main() {
	root := &cobra.Command{
		Use:           "datachat",
		Short:         "Operator CLI for the rapiddatachat query core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newSweepCmd(), newQueryCmd(), newDeadLettersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads config and wires the application. Callers own closing
// the returned databases.
func bootstrap(ctx context.Context) (*app.App, *config.Config, func(), error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open metastore: %w", err)
	}
	if err := internaldb.RunMigrations(writeDB); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, nil, nil, fmt.Errorf("migrate metastore: %w", err)
	}

	rowDB, err := sql.Open("duckdb", cfg.RowDBPath)
	if err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, nil, nil, fmt.Errorf("open row store: %w", err)
	}

	application, err := app.New(ctx, app.Deps{
		Cfg: cfg, WriteDB: writeDB, ReadDB: readDB, RowDB: rowDB, Logger: logger,
	})
	if err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		_ = rowDB.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = rowDB.Close()
		_ = readDB.Close()
		_ = writeDB.Close()
	}
	return application, cfg, cleanup, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending metastore migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			writeDB, err := internaldb.OpenSQLite(cfg.MetaDBPath, "write", 0)
			if err != nil {
				return err
			}
			defer writeDB.Close() //nolint:errcheck

			if err := internaldb.RunMigrations(writeDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one dead-letter sweep immediately",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := application.Services.DeadLetters.ProcessDeadLetterQueue(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		},
	}
}

func newQueryCmd() *cobra.Command {
	var (
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Validate and execute a SELECT through the rewrite pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := application.Engine.EnsureRowStore(cmd.Context()); err != nil {
				return err
			}

			opts := domain.QueryOptions{Page: page, PageSize: pageSize}
			prep := application.Services.Query.Prepare(cmd.Context(), args[0], opts)
			if !prep.IsValid {
				return fmt.Errorf("query rejected: %s", prep.Error)
			}

			result, err := application.Services.Query.Execute(cmd.Context(), prep.SQLQuery, opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Rows per page")
	return cmd
}

func newDeadLettersCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "List dead-lettered operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := application.Services.DeadLetters.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum items to list")
	return cmd
}
