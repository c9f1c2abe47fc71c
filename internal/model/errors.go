package model

import (
	"errors"
	"net/http"
)

// 业务错误分类，对外只暴露稳定的错误码，不泄露内部细节
var (
	ErrNotFound           = errors.New("poll or option not found")
	ErrPollClosed         = errors.New("poll is closed or expired")
	ErrInvalidOption      = errors.New("option does not belong to poll")
	ErrDuplicateVote      = errors.New("already voted on this poll")
	ErrForbidden          = errors.New("only the poll creator may do this")
	ErrUnauthorized       = errors.New("missing or invalid credentials")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrServiceUnavailable = errors.New("dependency unavailable")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("resource already exists")
)

// ErrorCode 错误对应的机器可读错误码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrPollClosed):
		return "POLL_CLOSED"
	case errors.Is(err, ErrInvalidOption):
		return "INVALID_OPTION"
	case errors.Is(err, ErrDuplicateVote):
		return "DUPLICATE_VOTE"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus 错误对应的HTTP状态码
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPollClosed), errors.Is(err, ErrDuplicateVote), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidOption), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
