// Package handler contains the HTTP handlers for the streak API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path values, query, JSON body)
//  2. Call the service layer with the authenticated user
//  3. Write the response (status, JSON body or event stream)
//
// Handlers hold no business rules. Validation, the streak lifecycle and
// badge issuance all live in internal/service.
package handler

// RESPONSE HELPERS:
// Every JSON response goes through writeJSON, every failure through
// writeError. Error bodies always have the same shape:
//
//	{"error": "not_found", "message": "streak not found with id abc123"}
//
// so clients can branch on "error" without parsing messages.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/auth"
)

// maxBodyBytes caps request bodies. Every payload here is a few fields.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, for validation errors
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; after the first body byte they are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are gone already; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps an error kind to a status code.
//
// The service layer knows nothing about HTTP. It returns apperror kinds
// and this is the one place they become status codes:
//
//	ErrValidation       → 400
//	ErrNotAuthenticated → 401
//	ErrForbidden        → 403
//	ErrNotFound         → 404
//	ErrConflict         → 409
//	ErrStoreUnavailable → 503
//	anything else       → 500
//
// errors.Is walks wrapped chains, so fmt.Errorf("...: %w", appErr) from a
// service still maps correctly.
func writeError(w http.ResponseWriter, err error) {
	status, resp := errorResponse(err)
	writeJSON(w, status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotAuthenticated):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrStoreUnavailable):
		status, kind = http.StatusServiceUnavailable, "store_unavailable"
	}

	resp := ErrorResponse{Error: kind}
	var appErr *apperror.AppError
	switch {
	case status == http.StatusInternalServerError:
		// Never echo driver errors: they can carry SQL or hostnames.
		resp.Message = "an internal error occurred"
	case status == http.StatusServiceUnavailable:
		resp.Message = "storage is temporarily unavailable, try again"
	case errors.As(err, &appErr):
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	default:
		resp.Message = http.StatusText(status)
	}
	return status, resp
}

// decodeJSON reads a single JSON object from the body into dst. Unknown
// fields and trailing data are rejected as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body must not be empty")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", fmt.Sprintf("request body must be at most %d bytes", maxErr.Limit))
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return apperror.ValidationFailed(field, "unknown field "+field)
		default:
			return apperror.ValidationFailed("body", "request body is not valid JSON")
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "request body must be a single JSON object")
	}
	return nil
}

// currentUser is the authenticated user ID, or "" for anonymous requests.
// Services reject "" with ErrNotAuthenticated.
func currentUser(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
