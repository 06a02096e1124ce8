package ports

import "context"

type runIDKey struct{}

// ContextWithRunID attaches an execution identifier to ctx so every layer
// handling the same count tags its spans and results with one id.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the execution identifier stored by
// ContextWithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
