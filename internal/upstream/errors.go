package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrNotFound        = errors.New("not found")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrTransport       = errors.New("transport failure")
)

// Error is a failed upstream call. Status is the HTTP status the provider
// returned, or 0 when no response was received. Body holds the provider's
// response body for non-2xx replies so normalizers can extract its message.
type Error struct {
	Provider string
	Status   int
	Detail   string
	Body     []byte
	err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.Status, e.err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Provider, e.err, e.Detail)
}

func (e *Error) Unwrap() error { return e.err }

// Envelope is the {error, detail} body returned to clients for this failure.
func (e *Error) Envelope() map[string]string {
	msg := "Upstream request failed"
	if e.Status >= 400 {
		msg = fmt.Sprintf("Upstream returned HTTP %d", e.Status)
	}
	return map[string]string{"error": msg, "detail": e.Detail}
}

// statusError maps a non-2xx status to its sentinel.
func statusError(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrInvalidAPIKey
	case code == 404:
		return ErrNotFound
	case code == 429:
		return ErrRateLimited
	default:
		return ErrUpstreamFailure
	}
}

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (upstreamErrorsTotal).
const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey ErrorCategory = "invalid_api_key"
	ErrorCategoryNotFound      ErrorCategory = "not_found"
	ErrorCategoryRateLimited   ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx   ErrorCategory = "upstream_5xx"
	ErrorCategoryUpstream4xx   ErrorCategory = "upstream_4xx"
	ErrorCategoryCircuitOpen   ErrorCategory = "circuit_open"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrCircuitOpen) {
		return ErrorCategoryCircuitOpen
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}
	if errors.Is(err, ErrNotFound) {
		return ErrorCategoryNotFound
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorCategoryRateLimited
	}

	var upErr *Error
	if errors.As(err, &upErr) && upErr.Status > 0 {
		if upErr.Status >= 500 {
			return ErrorCategoryUpstream5xx
		}
		return ErrorCategoryUpstream4xx
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrTransport) || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return ErrorCategoryUpstream5xx
	}
	return ErrorCategoryUnknown
}
