package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "error with provider",
			err:      &Error{Kind: ErrorKindNotFound, Message: "flavor t9.huge not found", Provider: "aws_cnr"},
			expected: "[aws_cnr] not_found: flavor t9.huge not found",
		},
		{
			name:     "error without provider",
			err:      &Error{Kind: ErrorKindInvalidArgument, Message: "bad mode"},
			expected: "invalid_argument: bad mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want int
	}{
		{ErrorKindInvalidArgument, http.StatusBadRequest},
		{ErrorKindNotFound, http.StatusNotFound},
		{ErrorKindCredentialsInvalid, http.StatusFailedDependency},
		{ErrorKindUpstreamUnavailable, http.StatusServiceUnavailable},
		{ErrorKind("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := &Error{Kind: tt.kind}
			if got := err.HTTPStatusCode(); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", NewNotFoundError(CloudAzure, "missing"))
	if got := KindOf(wrapped); got != ErrorKindNotFound {
		t.Errorf("KindOf(wrapped) = %q, want not_found", got)
	}
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound(wrapped) = false")
	}
	if got := KindOf(errors.New("boom")); got != ErrorKindUpstreamUnavailable {
		t.Errorf("KindOf(untyped) = %q, want upstream_unavailable", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestParseProviderError(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, ErrorKindCredentialsInvalid},
		{http.StatusForbidden, ErrorKindCredentialsInvalid},
		{http.StatusNotFound, ErrorKindNotFound},
		{http.StatusBadRequest, ErrorKindInvalidArgument},
		{http.StatusTooManyRequests, ErrorKindUpstreamUnavailable},
		{http.StatusBadGateway, ErrorKindUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ParseProviderError(CloudNebius, tt.status, []byte(`{"message":"x"}`), nil)
			if err.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.want)
			}
			if err.Provider != string(CloudNebius) {
				t.Errorf("Provider = %q, want nebius", err.Provider)
			}
		})
	}
}

func TestWrapTransportError(t *testing.T) {
	err := WrapTransportError(CloudGCP, "list skus", context.DeadlineExceeded)
	if KindOf(err) != ErrorKindUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected wrapped deadline error")
	}

	typed := NewCredentialsInvalidError(CloudGCP, "bad key", nil)
	if got := WrapTransportError(CloudGCP, "list skus", typed); got != typed {
		t.Error("typed errors should pass through unchanged")
	}
}
