// Package auth provides the identity provider used by the admin provisioning service.
//
// # Bearer Tokens
//
// API callers authenticate with HS256 JWTs signed with the configured
// auth.jwt_secret (at least 32 bytes). The "sub" claim carries the identity ID
// and every token must carry "exp". Provider accepts any TokenIssuer;
// JWTVerifier is the production one:
//
//	verifier, err := NewJWTVerifier(secret)
//	token, err := verifier.Generate(identityID, 24*time.Hour)
//	subject, err := verifier.Verify(token)
//
// # Provider
//
// Provider resolves tokens to stored identities, creates identities with
// bcrypt-hashed passwords and issues tokens on sign-in. Creating an identity
// with EmailConfirmed set bypasses the confirmation flow; the flag is persisted
// on the identity so the bypass stays visible.
//
// # Transport Helpers
//
// ExtractBearerToken parses an Authorization header and
// BearerFromIncomingContext reads the same value from gRPC metadata.
// WithAuth and FromContext carry the verified caller through a request.
package auth
