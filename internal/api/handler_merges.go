package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

type mergeRequest struct {
	MergeName string   `json:"mergeName"`
	Fields    []string `json:"fields"`
	Delimiter string   `json:"delimiter"`
}

func (req mergeRequest) toDefinition(ownerID, sourceID string) *domain.MergedColumnDefinition {
	return &domain.MergedColumnDefinition{
		OwnerID:   ownerID,
		SourceID:  sourceID,
		MergeName: req.MergeName,
		Fields:    req.Fields,
		Delimiter: req.Delimiter,
	}
}

type mergeResponse struct {
	ID        string   `json:"id,omitempty"`
	MergeName string   `json:"mergeName"`
	Fields    []string `json:"fields"`
	Delimiter string   `json:"delimiter"`
	ViewName  string   `json:"viewName"`
}

func mergeToAPI(d *domain.MergedColumnDefinition) mergeResponse {
	return mergeResponse{
		ID:        d.ID,
		MergeName: d.MergeName,
		Fields:    d.Fields,
		Delimiter: d.Delimiter,
		ViewName:  d.ViewName(),
	}
}

// ListMerges returns the merged columns defined on a source.
func (h *Handler) ListMerges(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sourceID := chi.URLParam(r, "sourceID")

	defs := h.merges.List(r.Context(), owner, sourceID)
	out := make([]mergeResponse, len(defs))
	for i := range defs {
		out[i] = mergeToAPI(&defs[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"merges": out})
}

// GetMerge returns one merged-column definition.
func (h *Handler) GetMerge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	def := h.merges.Get(r.Context(), owner, chi.URLParam(r, "sourceID"), chi.URLParam(r, "mergeName"))
	if def == nil {
		writeError(w, domain.ErrNotFound("merged column %q does not exist", chi.URLParam(r, "mergeName")))
		return
	}
	writeJSON(w, http.StatusOK, mergeToAPI(def))
}

// CreateMerge creates a merged column and its view.
func (h *Handler) CreateMerge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	result, err := h.merges.Create(r.Context(), req.toDefinition(owner, chi.URLParam(r, "sourceID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// UpdateMerge replaces a merged-column definition, creating it when
// absent.
func (h *Handler) UpdateMerge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	req.MergeName = chi.URLParam(r, "mergeName")

	result, err := h.merges.Update(r.Context(), req.toDefinition(owner, chi.URLParam(r, "sourceID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteMerge drops the merged view and definition.
func (h *Handler) DeleteMerge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.merges.Drop(r.Context(), owner, chi.URLParam(r, "sourceID"), chi.URLParam(r, "mergeName"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
