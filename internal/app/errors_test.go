package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"innomatch/api/internal/attachments"
	"innomatch/api/internal/auth"
	"innomatch/api/internal/export"
	"innomatch/api/internal/store"
	"innomatch/api/internal/workflow"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain", forbidden(), http.StatusForbidden, "FORBIDDEN"},
		{"unauthorized", unauthorized(), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"validation", fmt.Errorf("wrap: %w", &workflow.ValidationError{Field: "status", Reason: "bad"}), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"upload", fmt.Errorf("%w: nope", attachments.ErrInvalidUpload), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"format", export.ErrUnsupportedFormat, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", fmt.Errorf("decide: %w", store.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"token", auth.ErrExpiredToken, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"docx", fmt.Errorf("%w: pandoc", export.ErrDOCXDependencyMissing), http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE"},
		{"store", errors.New("deadline exceeded"), http.StatusInternalServerError, "STORE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			if status != tt.status || code != tt.code {
				t.Fatalf("mapError(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestMapErrorKeepsStoreCause(t *testing.T) {
	_, _, _, details := mapError(errors.New("quota exceeded"))
	m, ok := details.(map[string]any)
	if !ok || m["cause"] != "quota exceeded" {
		t.Fatalf("expected cause in details, got %#v", details)
	}
}

func TestValidationDetailsNameField(t *testing.T) {
	_, _, message, details := mapError(&workflow.ValidationError{Field: "outcome", Reason: "must be one of Approved, Rejected"})
	if message != "outcome: must be one of Approved, Rejected" {
		t.Fatalf("unexpected message %q", message)
	}
	if details.(map[string]any)["field"] != "outcome" {
		t.Fatalf("unexpected details %#v", details)
	}
}
