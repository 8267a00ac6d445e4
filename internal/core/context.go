package core

import "context"

type contextKey string

const requestIDKey contextKey = "request-id"

// WithRequestID returns a new context carrying the API request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request id attached to ctx, or "" for work that
// did not start from an API request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
