package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

type transactionResponse struct {
	ID          string                   `json:"id"`
	SchemaID    string                   `json:"schemaId"`
	Status      string                   `json:"status"`
	Operations  []domain.SchemaOperation `json:"operations"`
	StartedAt   time.Time                `json:"startedAt"`
	CompletedAt *time.Time               `json:"completedAt,omitempty"`
}

func transactionToAPI(tx *domain.SchemaTransaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		SchemaID:    tx.SchemaID,
		Status:      tx.Status,
		Operations:  tx.Operations,
		StartedAt:   tx.StartedAt,
		CompletedAt: tx.CompletedAt,
	}
}

// BeginTransaction opens a schema transaction, taking the schema lock.
func (h *Handler) BeginTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.schemaTx.Begin(r.Context(), owner, chi.URLParam(r, "schemaID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionToAPI(tx))
}

// ListTransactions returns recent transactions for a schema.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.schemaTx.History(r.Context(), owner, chi.URLParam(r, "schemaID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]transactionResponse, len(txs))
	for i := range txs {
		out[i] = transactionToAPI(&txs[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": out})
}

// GetTransaction returns one transaction with its operation log.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.schemaTx.Get(r.Context(), owner, chi.URLParam(r, "txID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToAPI(tx))
}

type operationRequest struct {
	Type   string                 `json:"type"`
	Target string                 `json:"target"`
	Params map[string]interface{} `json:"params"`
}

// AddOperation appends an operation to a pending transaction.
func (h *Handler) AddOperation(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	tx, err := h.schemaTx.AddOperation(r.Context(), owner, chi.URLParam(r, "txID"), domain.SchemaOperation{
		Type:   req.Type,
		Target: req.Target,
		Params: req.Params,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToAPI(tx))
}

// CommitTransaction applies the operation log as one new schema version.
func (h *Handler) CommitTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.schemaTx.Commit(r.Context(), owner, chi.URLParam(r, "txID"))
	if err != nil {
		if tx != nil {
			// Failed commits still return the transaction so the caller
			// sees which operation broke the batch.
			writeJSON(w, httpStatusFromDomainError(err), map[string]interface{}{
				"transaction": transactionToAPI(tx),
				"error":       err.Error(),
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToAPI(tx))
}

// RollbackTransaction discards a pending transaction.
func (h *Handler) RollbackTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.schemaTx.Rollback(r.Context(), owner, chi.URLParam(r, "txID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToAPI(tx))
}
