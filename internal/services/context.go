package services

import "context"

type contextKey string

const (
	snippetKeyKey contextKey = "snippet_key"
	componentKey  contextKey = "component"
	requestIDKey  contextKey = "request_id"
)

// WithSnippetKey annotates context with the snippet identity key.
func WithSnippetKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, snippetKeyKey, key)
}

// SnippetKeyFromContext extracts the snippet identity key if present.
func SnippetKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(snippetKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithComponent annotates context with the active component name.
func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, componentKey, component)
}

// ComponentFromContext returns the component name if present.
func ComponentFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
