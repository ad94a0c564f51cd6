package interceptors

import (
	"context"

	"online-status/internal/security"
)

type contextKey struct{ name string }

var principalKey = contextKey{"principal"}

// WithPrincipal returns a context carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p *security.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller set by AuthUnary, or nil, false for anonymous requests.
func PrincipalFrom(ctx context.Context) (*security.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*security.Principal)
	return p, ok && p != nil
}

// GetUserID returns the caller's user id and true if the request is authenticated; otherwise 0, false.
func GetUserID(ctx context.Context) (int64, bool) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return 0, false
	}
	return p.UserID, true
}
