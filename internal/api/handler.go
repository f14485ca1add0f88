// Package api provides the HTTP handlers for the query core REST API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/failure"
	"github.com/mr-cto/rapiddatachat/internal/middleware"
	"github.com/mr-cto/rapiddatachat/internal/service/ask"
	"github.com/mr-cto/rapiddatachat/internal/service/discovery"
	"github.com/mr-cto/rapiddatachat/internal/service/merge"
	"github.com/mr-cto/rapiddatachat/internal/service/query"
	"github.com/mr-cto/rapiddatachat/internal/service/schematx"
)

// Handler carries the service dependencies for all routes.
type Handler struct {
	discovery   *discovery.Service
	ask         *ask.Service
	queries     *query.Service
	merges      *merge.Service
	schemaTx    *schematx.Manager
	deadLetters *failure.DeadLetterService
	logger      *slog.Logger
}

func NewHandler(
	disc *discovery.Service,
	askSvc *ask.Service,
	queries *query.Service,
	merges *merge.Service,
	schemaTx *schematx.Manager,
	deadLetters *failure.DeadLetterService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		discovery:   disc,
		ask:         askSvc,
		queries:     queries,
		merges:      merges,
		schemaTx:    schemaTx,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// NewRouter builds the chi router with the standard middleware chain.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Owner-ID", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/schema", h.GetSchema)
		r.Post("/ask", h.Ask)
		r.Post("/query", h.RunQuery)

		r.Route("/sources/{sourceID}/merges", func(r chi.Router) {
			r.Get("/", h.ListMerges)
			r.Post("/", h.CreateMerge)
			r.Get("/{mergeName}", h.GetMerge)
			r.Put("/{mergeName}", h.UpdateMerge)
			r.Delete("/{mergeName}", h.DeleteMerge)
		})

		r.Route("/schemas/{schemaID}/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.BeginTransaction)
		})
		r.Route("/transactions/{txID}", func(r chi.Router) {
			r.Get("/", h.GetTransaction)
			r.Post("/operations", h.AddOperation)
			r.Post("/commit", h.CommitTransaction)
			r.Post("/rollback", h.RollbackTransaction)
		})

		r.Route("/deadletters", func(r chi.Router) {
			r.Get("/", h.ListDeadLetters)
			r.Post("/{id}/retry", h.RetryDeadLetter)
			r.Delete("/{id}", h.DeleteDeadLetter)
		})
	})

	return r
}

// ownerID extracts the caller identity from the X-Owner-ID header. The
// core trusts the gateway in front of it to have authenticated the
// caller; an absent header is a bad request, not a 401.
func ownerID(r *http.Request) (string, error) {
	id := r.Header.Get("X-Owner-ID")
	if id == "" {
		return "", domain.ErrValidation("X-Owner-ID header is required")
	}
	return id, nil
}
