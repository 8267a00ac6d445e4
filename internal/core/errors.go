// Package core provides the shared types, adapter contract and error kinds
// used across the flavor and pricing resolver.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure a provider adapter or the resolver can surface.
type ErrorKind string

const (
	// ErrorKindInvalidArgument indicates a malformed request or unsupported cloud/region/mode.
	ErrorKindInvalidArgument ErrorKind = "invalid_argument"
	// ErrorKindNotFound indicates the flavor or its price is absent in the provider catalog.
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindCredentialsInvalid indicates the provider rejected the configured credentials.
	ErrorKindCredentialsInvalid ErrorKind = "credentials_invalid"
	// ErrorKindUpstreamUnavailable indicates a network failure, timeout or provider outage.
	ErrorKindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// Error is the typed error returned by adapters and the resolver.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Provider string    `json:"provider,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code used by the API surface for this error.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindInvalidArgument:
		return http.StatusBadRequest
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindCredentialsInvalid:
		return http.StatusFailedDependency
	case ErrorKindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *Error) ToJSON() map[string]interface{} {
	body := map[string]interface{}{
		"kind":    e.Kind,
		"message": e.Message,
	}
	if e.Provider != "" {
		body["provider"] = e.Provider
	}
	return map[string]interface{}{"error": body}
}

// NewInvalidArgumentError creates an invalid argument error.
func NewInvalidArgumentError(message string, err error) *Error {
	return &Error{Kind: ErrorKindInvalidArgument, Message: message, Err: err}
}

// NewNotFoundError creates a not found error for the given provider.
func NewNotFoundError(provider CloudType, message string) *Error {
	return &Error{Kind: ErrorKindNotFound, Message: message, Provider: string(provider)}
}

// NewCredentialsInvalidError creates a credentials error for the given provider.
func NewCredentialsInvalidError(provider CloudType, message string, err error) *Error {
	return &Error{Kind: ErrorKindCredentialsInvalid, Message: message, Provider: string(provider), Err: err}
}

// NewUpstreamUnavailableError creates an upstream error for the given provider.
func NewUpstreamUnavailableError(provider CloudType, message string, err error) *Error {
	return &Error{Kind: ErrorKindUpstreamUnavailable, Message: message, Provider: string(provider), Err: err}
}

// KindOf returns the kind of err. Context deadline and cancellation map to
// upstream unavailability; anything untyped is reported as upstream too.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ErrorKindUpstreamUnavailable
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == ErrorKindNotFound
}

// IsInvalidArgument reports whether err is an invalid argument error.
func IsInvalidArgument(err error) bool {
	return err != nil && KindOf(err) == ErrorKindInvalidArgument
}

// IsCredentialsInvalid reports whether err is a credentials error.
func IsCredentialsInvalid(err error) bool {
	return err != nil && KindOf(err) == ErrorKindCredentialsInvalid
}

// ParseProviderError maps an HTTP error response from a provider REST API to a typed error.
func ParseProviderError(provider CloudType, statusCode int, body []byte, originalErr error) *Error {
	message := string(body)
	if len(message) > 512 {
		message = message[:512]
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewCredentialsInvalidError(provider, message, originalErr)
	case statusCode == http.StatusNotFound:
		err := NewNotFoundError(provider, message)
		err.Err = originalErr
		return err
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		err := NewInvalidArgumentError(message, originalErr)
		err.Provider = string(provider)
		return err
	default:
		return NewUpstreamUnavailableError(provider, message, originalErr)
	}
}

// WrapTransportError converts a transport-level failure (dial, TLS, timeout) into a typed error.
// Typed errors pass through unchanged.
func WrapTransportError(provider CloudType, op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewUpstreamUnavailableError(provider, op+": timed out", err)
	}
	return NewUpstreamUnavailableError(provider, op+": "+err.Error(), err)
}
