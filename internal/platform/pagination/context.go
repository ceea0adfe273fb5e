package pagination

import "context"

type contextKey string

const paramsContextKey contextKey = "github.com/hallpass-app/api/internal/platform/pagination/params"

// WithParams stores the parsed pagination params on the context.
func WithParams(ctx context.Context, params Params) context.Context {
	return context.WithValue(ctx, paramsContextKey, params)
}

// FromContext returns the params stored on the context, if any.
func FromContext(ctx context.Context) (Params, bool) {
	params, ok := ctx.Value(paramsContextKey).(Params)
	return params, ok
}

// FromContextOrDefault returns the stored params or a default-sized page.
func FromContextOrDefault(ctx context.Context) Params {
	if params, ok := FromContext(ctx); ok {
		return params
	}
	return Params{PageSize: DefaultPageSize}
}
