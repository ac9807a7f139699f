package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeAndStatusFollowWrapping(t *testing.T) {
	err := fmt.Errorf("%w: verify your email address", ErrForbidden)
	if Code(err) != "FORBIDDEN" {
		t.Errorf("got code %q, want FORBIDDEN", Code(err))
	}
	if Status(err) != http.StatusForbidden {
		t.Errorf("got status %d, want 403", Status(err))
	}
}

func TestUnknownErrorMapsToInternal(t *testing.T) {
	err := errors.New("something unexpected")
	if Code(err) != "INTERNAL_SERVER_ERROR" {
		t.Errorf("got code %q, want INTERNAL_SERVER_ERROR", Code(err))
	}
	if Status(err) != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", Status(err))
	}
}

func TestRateLimitErrorMatchesTooManyRequests(t *testing.T) {
	err := error(&RateLimitError{RetryAfter: 42})
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatal("rate limit error does not match ErrTooManyRequests")
	}
	if Status(err) != http.StatusTooManyRequests {
		t.Errorf("got status %d, want 429", Status(err))
	}
	if RetryAfter(err) != 42 {
		t.Errorf("got retryAfter %d, want 42", RetryAfter(err))
	}
}

func TestRetryAfterZeroForPlainErrors(t *testing.T) {
	if RetryAfter(ErrTooManyRequests) != 0 {
		t.Error("plain sentinel should carry no retry hint")
	}
}
