// Package rbac holds caller checks shared by gRPC handlers.
package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"online-status/internal/security"
	"online-status/internal/server/interceptors"
)

// RequireUser ensures the caller is authenticated with a positive user id.
// Returns the caller on success; returns a gRPC Unauthenticated error otherwise.
func RequireUser(ctx context.Context) (*security.Principal, error) {
	p, ok := interceptors.PrincipalFrom(ctx)
	if !ok || p.UserID <= 0 {
		return nil, status.Error(codes.Unauthenticated, "user context required")
	}
	return p, nil
}
