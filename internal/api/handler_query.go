package api

import (
	"encoding/json"
	"net/http"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// GetSchema returns the discovered tables for the caller: view names,
// inferred columns, row counts, and merged columns.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tables, err := h.discovery.DiscoverSchema(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

type askRequest struct {
	Question string            `json:"question"`
	Options  queryOptionsInput `json:"options"`
}

type queryOptionsInput struct {
	Page          int                    `json:"page"`
	PageSize      int                    `json:"pageSize"`
	SortColumn    string                 `json:"sortColumn"`
	SortDirection string                 `json:"sortDirection"`
	Filters       map[string]interface{} `json:"filters"`
}

func (in queryOptionsInput) toDomain() domain.QueryOptions {
	return domain.QueryOptions{
		Page:          in.Page,
		PageSize:      in.PageSize,
		SortColumn:    in.SortColumn,
		SortDirection: in.SortDirection,
		Filters:       in.Filters,
	}
}

// Ask answers a natural-language question against the caller's sources.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	result, err := h.ask.Ask(r.Context(), owner, req.Question, req.Options.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type runQueryRequest struct {
	SQL     string            `json:"sql"`
	Options queryOptionsInput `json:"options"`
}

// RunQuery validates and executes a caller-supplied SELECT statement
// through the same pipeline translator output goes through.
func (h *Handler) RunQuery(w http.ResponseWriter, r *http.Request) {
	if _, err := ownerID(r); err != nil {
		writeError(w, err)
		return
	}

	var req runQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	opts := req.Options.toDomain()
	prep := h.queries.Prepare(r.Context(), req.SQL, opts)
	if !prep.IsValid {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"isValid": false,
			"error":   prep.Error,
			"sql":     prep.SQLQuery,
		})
		return
	}

	page, err := h.queries.Execute(r.Context(), prep.SQLQuery, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"isValid": true,
		"page":    page,
	})
}
