package middleware

import (
	"context"

	"github.com/angelmondragon/credstock/internal/apikeys"
)

type contextKey string

const ctxPrincipal contextKey = "api_key_principal"

// PrincipalFromContext returns the api key principal attached by APIKey.
func PrincipalFromContext(ctx context.Context) (*apikeys.Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(ctxPrincipal).(*apikeys.Principal)
	return p, ok && p != nil
}

// WithPrincipal injects the principal into the context for downstream handlers.
func WithPrincipal(ctx context.Context, p *apikeys.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}
