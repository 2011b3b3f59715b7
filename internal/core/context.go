package core

import "context"

type contextKey string

const ctxKeySource contextKey = "write_source"

// ContextWithSource tags ctx with the origin of a write ("api 10.0.0.7",
// "ingest <run id>") for the record log lines.
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ctxKeySource, source)
}

// SourceFromContext returns the write origin, or "" if unset.
func SourceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySource).(string); ok {
		return v
	}
	return ""
}
