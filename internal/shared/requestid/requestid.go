// Package requestid carries the inbound request id through contexts for logging.
package requestid

import "context"

type key struct{}

// With attaches a request id to ctx. An empty id leaves ctx unchanged.
func With(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, requestID)
}

// From returns the request id stored in ctx, if any.
func From(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(key{}).(string); ok {
		return id
	}
	return ""
}

// Detach returns a background context that keeps only the request id of ctx.
func Detach(ctx context.Context) context.Context {
	return With(context.Background(), From(ctx))
}
