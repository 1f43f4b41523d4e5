package idempotency

import "context"

type contextKey struct{}

// FromContext returns the idempotency key attached by the HTTP middleware.
func FromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(contextKey{}).(string)

	return key, ok && key != ""
}

func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKey{}, key)
}
