// Package app provides application-level wiring and dependency injection
// for the query core following hexagonal architecture.
package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/mr-cto/rapiddatachat/internal/config"
	"github.com/mr-cto/rapiddatachat/internal/db/repository"
	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/engine"
	"github.com/mr-cto/rapiddatachat/internal/failure"
	"github.com/mr-cto/rapiddatachat/internal/service/ask"
	"github.com/mr-cto/rapiddatachat/internal/service/discovery"
	"github.com/mr-cto/rapiddatachat/internal/service/merge"
	"github.com/mr-cto/rapiddatachat/internal/service/query"
	"github.com/mr-cto/rapiddatachat/internal/service/schematx"
	"github.com/mr-cto/rapiddatachat/internal/translator"
)

// Dead-letter operation types with registered re-dispatch handlers.
const (
	OpCreateSourceView = "create_source_view"
	OpCreateMergedView = "create_merged_view"
)

// Deps holds the external dependencies that main() must provide:
// database handles, config, and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB // SQLite metastore, single-writer pool
	ReadDB  *sql.DB // SQLite metastore, read pool
	RowDB   *sql.DB // DuckDB row store
	Logger  *slog.Logger
}

// Services groups the service pointers the API handler needs.
type Services struct {
	Discovery   *discovery.Service
	Ask         *ask.Service
	Query       *query.Service
	Merge       *merge.Service
	SchemaTx    *schematx.Manager
	DeadLetters *failure.DeadLetterService
}

// App is the fully wired application.
type App struct {
	Services Services
	Engine   *engine.Engine
	Views    domain.ViewManager
}

// New wires all repositories and services from the provided deps and
// registers the dead-letter re-dispatch handlers.
func New(_ context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger

	// Repositories (write pool)
	sourceRepo := repository.NewSourceRepo(deps.WriteDB)
	mergeRepo := repository.NewMergedColumnRepo(deps.WriteDB)
	schemaRepo := repository.NewSchemaRepo(deps.WriteDB)
	lockRepo := repository.NewLockRepo(deps.WriteDB)
	txRepo := repository.NewTransactionRepo(deps.WriteDB)
	deadLetterRepo := repository.NewDeadLetterRepo(deps.WriteDB)

	// Repositories (read pool): discovery and the GET endpoints read
	// here so they never queue behind the single writer.
	sourceReadRepo := repository.NewSourceRepo(deps.ReadDB)
	mergeReadRepo := repository.NewMergedColumnRepo(deps.ReadDB)
	txReadRepo := repository.NewTransactionRepo(deps.ReadDB)

	// Row engine and views
	eng := engine.New(deps.RowDB, logger.With("component", "engine"))
	rawViews := engine.NewViewService(eng, sourceRepo, logger.With("component", "views"))

	deadLetters := failure.NewDeadLetterService(
		deadLetterRepo, cfg.SweepMaxRetries, cfg.SweepBatchSize, logger.With("component", "deadletter"))
	views := newContainedViewManager(rawViews, deadLetters, logger)
	registerViewHandlers(deadLetters, rawViews)

	// Core services
	locks := schematx.NewLockManager(
		lockRepo, cfg.LockRetries, cfg.LockRetryDelay, cfg.LockTimeout, logger.With("component", "locks"))
	querySvc := query.NewService(eng, cfg.QueryTimeout, logger.With("component", "query"))
	discoverySvc := discovery.NewService(sourceReadRepo, mergeReadRepo, eng, views, logger.With("component", "discovery"))
	mergeSvc := merge.NewService(mergeRepo, mergeReadRepo, views, locks, logger.With("component", "merge"))
	schemaTx := schematx.NewManager(schemaRepo, txRepo, txReadRepo, locks, logger.With("component", "schematx"))

	var trans domain.Translator
	if cfg.TranslatorURL != "" {
		trans = translator.NewClient(cfg.TranslatorURL, logger.With("component", "translator"))
	}
	askSvc := ask.NewService(discoverySvc, trans, querySvc, logger.With("component", "ask"))

	return &App{
		Services: Services{
			Discovery:   discoverySvc,
			Ask:         askSvc,
			Query:       querySvc,
			Merge:       mergeSvc,
			SchemaTx:    schemaTx,
			DeadLetters: deadLetters,
		},
		Engine: eng,
		Views:  views,
	}, nil
}

// registerViewHandlers binds the dead-letter operation types to fresh
// view-creation attempts against the raw (uncontained) manager so a
// sweep retry is a single attempt, not a nested retry loop.
func registerViewHandlers(dl *failure.DeadLetterService, views domain.ViewManager) {
	dl.RegisterHandler(OpCreateSourceView, func(ctx context.Context, payload map[string]interface{}) error {
		owner, _ := payload["ownerId"].(string)
		source, _ := payload["sourceId"].(string)
		if owner == "" || source == "" {
			return domain.ErrValidation("payload missing ownerId or sourceId")
		}
		_, err := views.CreateSourceView(ctx, owner, source)
		return err
	})

	dl.RegisterHandler(OpCreateMergedView, func(ctx context.Context, payload map[string]interface{}) error {
		def := &domain.MergedColumnDefinition{
			Delimiter: stringField(payload, "delimiter"),
			MergeName: stringField(payload, "mergeName"),
			OwnerID:   stringField(payload, "ownerId"),
			SourceID:  stringField(payload, "sourceId"),
		}
		if raw, ok := payload["fields"].([]interface{}); ok {
			for _, f := range raw {
				if s, ok := f.(string); ok {
					def.Fields = append(def.Fields, s)
				}
			}
		}
		_, err := views.CreateMergedView(ctx, def)
		return err
	})
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}
