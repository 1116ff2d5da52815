// ABOUTME: Bearer credential extraction for HTTP headers and gRPC metadata
// ABOUTME: Anything other than "Bearer <token>" yields an empty token

package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// ExtractBearerToken extracts a bearer token from an Authorization header value.
// The scheme is matched case-insensitively. Returns "" when absent or malformed.
func ExtractBearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// BearerFromIncomingContext extracts a bearer token from gRPC "authorization" metadata.
func BearerFromIncomingContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return ExtractBearerToken(values[0])
}
