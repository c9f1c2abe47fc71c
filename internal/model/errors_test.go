package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
		{ErrPollClosed, "POLL_CLOSED", http.StatusConflict},
		{ErrInvalidOption, "INVALID_OPTION", http.StatusBadRequest},
		{ErrDuplicateVote, "DUPLICATE_VOTE", http.StatusConflict},
		{ErrForbidden, "FORBIDDEN", http.StatusForbidden},
		{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
		{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
		{ErrServiceUnavailable, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
		{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
		{ErrConflict, "CONFLICT", http.StatusConflict},
		{errors.New("boom"), "INTERNAL", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.code {
			t.Errorf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.code)
		}
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestErrorMappingSeesWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("标题不能为空: %w", ErrInvalidInput)
	if got := ErrorCode(wrapped); got != "INVALID_INPUT" {
		t.Errorf("ErrorCode(wrapped) = %q", got)
	}
	if got := HTTPStatus(wrapped); got != http.StatusBadRequest {
		t.Errorf("HTTPStatus(wrapped) = %d", got)
	}
}
