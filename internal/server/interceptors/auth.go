package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"online-status/internal/security"
)

const bearerPrefix = "bearer "

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	ValidateAccess(token string) (*security.Principal, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access token from gRPC metadata
// and stores the caller in the context (see PrincipalFrom).
// publicMethods is the set of full method names that do not require a token (e.g. Heartbeat, Health/Check);
// on those an invalid or missing token leaves the request anonymous instead of failing it.
// A nil tokens rejects every protected method.
func AuthUnary(tokens TokenValidator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := BearerToken(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" || tokens == nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		principal, err := tokens.ValidateAccess(token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		return handler(WithPrincipal(ctx, principal), req)
	}
}

// BearerToken returns the Bearer token from ctx metadata, or "" if missing or malformed.
func BearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
