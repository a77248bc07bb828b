package upstream

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"invalid API key", ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
		{"wrapped invalid API key", fmt.Errorf("auth: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"not found", ErrNotFound, ErrorCategoryNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"circuit open", &Error{Provider: "om", err: ErrCircuitOpen}, ErrorCategoryCircuitOpen},
		{"5xx", &Error{Provider: "om", Status: 502, err: ErrUpstreamFailure}, ErrorCategoryUpstream5xx},
		{"4xx", &Error{Provider: "om", Status: 400, err: ErrUpstreamFailure}, ErrorCategoryUpstream4xx},
		{"transport", &Error{Provider: "om", Detail: "dial tcp", err: ErrTransport}, ErrorCategoryNetwork},
		{"timeout in message", errors.New("request timeout"), ErrorCategoryTimeout},
		{"parse in message", errors.New("parse response: invalid json"), ErrorCategoryParsing},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
