package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

func TestHTTPStatusFromDomainError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound("x"), http.StatusNotFound},
		{"access denied", domain.ErrAccessDenied("x"), http.StatusForbidden},
		{"validation", domain.ErrValidation("x"), http.StatusBadRequest},
		{"conflict", domain.ErrConflict("x"), http.StatusConflict},
		{"concurrency", domain.ErrConcurrency("x"), http.StatusConflict},
		{"timeout", domain.ErrTimeout("x"), http.StatusRequestTimeout},
		{"wrapped", fmt.Errorf("outer: %w", domain.ErrNotFound("x")), http.StatusNotFound},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, httpStatusFromDomainError(tc.err))
		})
	}
}

func TestWriteError_RedactsInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("dsn=user:hunter2@host"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestWriteError_SurfacesClientErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, domain.ErrValidation("page must be a positive integer"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "page must be a positive integer")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
