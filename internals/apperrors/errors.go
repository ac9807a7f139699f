package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the closed taxonomy used across the auth core.
// Controllers map these to a stable machine code and HTTP status; services
// wrap them with context via fmt.Errorf("%w: ...").
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation (duplicate registration,
	// lost rotation race).
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates bad credentials, a bad signature, or a bad
	// one-time code.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an account-state gate: deactivated account,
	// unverified email, or a provider-only account used with a password.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest indicates malformed, expired, mismatched, or
	// already-consumed input.
	ErrBadRequest = errors.New("bad request")
	// ErrTooManyRequests indicates a tripped rate limit or an active cooldown.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrInternal indicates an unexpected store or collaborator failure.
	ErrInternal = errors.New("internal server error")
	// ErrConfiguration indicates a missing or invalid server-side setting,
	// e.g. an unset JWT signing secret.
	ErrConfiguration = errors.New("configuration error")
)

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, ErrTooManyRequests):
		return "TOO_MANY_REQUESTS"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RateLimitError is a TooManyRequests error that knows how long the caller
// should wait before retrying.
type RateLimitError struct {
	RetryAfter int // seconds; 0 when the store could not derive it
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("too many requests, retry in %ds", e.RetryAfter)
	}
	return "too many requests"
}

// Is makes RateLimitError match ErrTooManyRequests in errors.Is chains.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrTooManyRequests
}

// RetryAfter extracts the retry-after hint from err, if any.
func RetryAfter(err error) int {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}
