package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

type deadLetterResponse struct {
	ID            string                 `json:"id"`
	OperationType string                 `json:"operationType"`
	Payload       map[string]interface{} `json:"payload"`
	Error         string                 `json:"error"`
	RetryCount    int                    `json:"retryCount"`
	Timestamp     time.Time              `json:"timestamp"`
	LastRetryAt   *time.Time             `json:"lastRetryAt,omitempty"`
}

func deadLetterToAPI(item *domain.DeadLetterItem) deadLetterResponse {
	return deadLetterResponse{
		ID:            item.ID,
		OperationType: item.OperationType,
		Payload:       item.Payload,
		Error:         item.Error,
		RetryCount:    item.RetryCount,
		Timestamp:     item.Timestamp,
		LastRetryAt:   item.LastRetryAt,
	}
}

// ListDeadLetters returns the queue, newest first.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if _, err := ownerID(r); err != nil {
		writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.deadLetters.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]deadLetterResponse, len(items))
	for i := range items {
		out[i] = deadLetterToAPI(&items[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deadLetters": out})
}

// RetryDeadLetter forces one item through its handler immediately.
func (h *Handler) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	if _, err := ownerID(r); err != nil {
		writeError(w, err)
		return
	}

	if err := h.deadLetters.Retry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retried"})
}

// DeleteDeadLetter removes an item without re-dispatching it.
func (h *Handler) DeleteDeadLetter(w http.ResponseWriter, r *http.Request) {
	if _, err := ownerID(r); err != nil {
		writeError(w, err)
		return
	}

	if err := h.deadLetters.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
