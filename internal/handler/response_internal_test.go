package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/streakme/internal/apperror"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"validation", apperror.ValidationFailed("name", "name is required"), http.StatusBadRequest, "validation_error", "name is required"},
		{"wrapped not found", fmt.Errorf("loading: %w", apperror.NotFound("streak", "s1")), http.StatusNotFound, "not_found", ""},
		{"conflict", apperror.Conflict("user", "a@example.com"), http.StatusConflict, "conflict", ""},
		{"forbidden", apperror.Forbidden("verify your email"), http.StatusForbidden, "forbidden", "verify your email"},
		{"unauthenticated", apperror.NotAuthenticated(), http.StatusUnauthorized, "unauthorized", ""},
		{"store down", apperror.StoreUnavailable("listing streaks", errors.New("dial tcp 10.0.0.7:5432: refused")), http.StatusServiceUnavailable, "store_unavailable", "storage is temporarily unavailable, try again"},
		{"unknown", errors.New("pq: relation \"streaks\" does not exist"), http.StatusInternalServerError, "internal_error", "an internal error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, resp.Error)
			assert.NotEmpty(t, resp.Message)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			}
			assert.NotContains(t, resp.Message, "10.0.0.7")
			assert.NotContains(t, resp.Message, "relation")
		})
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst struct {
		Name string `json:"name"`
	}
	err := decodeJSON(httptest.NewRecorder(), r, &dst)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "at most")
}

func TestDecodeJSON_EmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	var dst struct{}
	err := decodeJSON(httptest.NewRecorder(), r, &dst)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "empty")
}
