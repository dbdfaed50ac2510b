package roleauth

import "context"

type clientIPContextKey struct{}
type sessionClaimsContextKey struct{}
type resolvedPathContextKey struct{}

// WithClientIP attaches the caller's IP for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithSessionClaims attaches verified claims to ctx. The claims are a value
// copy and are never mutated after attachment.
func WithSessionClaims(ctx context.Context, claims SessionClaims) context.Context {
	return context.WithValue(ctx, sessionClaimsContextKey{}, claims)
}

// SessionClaimsFromContext returns claims attached by WithSessionClaims.
func SessionClaimsFromContext(ctx context.Context) (SessionClaims, bool) {
	if ctx == nil {
		return SessionClaims{}, false
	}
	claims, ok := ctx.Value(sessionClaimsContextKey{}).(SessionClaims)
	return claims, ok
}

// WithResolvedPath records the normalised path the route guard evaluated.
func WithResolvedPath(ctx context.Context, p string) context.Context {
	return context.WithValue(ctx, resolvedPathContextKey{}, p)
}

func ResolvedPathFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	p, ok := ctx.Value(resolvedPathContextKey{}).(string)
	return p, ok
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
