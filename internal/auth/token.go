// ABOUTME: HS256 bearer tokens issued by Provider on sign-in and checked on every admin call
// ABOUTME: The subject claim is the identity ID; tokens without an expiry are rejected

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest auth.jwt_secret accepted, in bytes.
const MinSecretLength = 32

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMissingClaim   = errors.New("missing required claim")
	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// TokenVerifier maps a bearer token to the identity ID it was issued for.
type TokenVerifier interface {
	Verify(tokenString string) (subject string, err error)
}

// TokenIssuer is what Provider needs from its signer: verification for
// incoming calls and signing for sign-in.
type TokenIssuer interface {
	TokenVerifier
	Generate(subject string, expiresIn time.Duration) (string, error)
}

var _ TokenIssuer = (*JWTVerifier)(nil)

// JWTVerifier signs and checks cap360 bearer tokens with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier returns ErrSecretTooShort for secrets under MinSecretLength.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &JWTVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func (v *JWTVerifier) key(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// Verify returns the identity ID carried in the sub claim. Expired tokens
// yield ErrExpiredToken, tokens lacking sub or exp yield ErrMissingClaim and
// anything else unusable yields ErrInvalidToken.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(tokenString, &claims, v.key)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "", fmt.Errorf("%w: exp", ErrMissingClaim)
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims.Subject, nil
}

// Generate signs a token for an identity ID that expires after expiresIn.
// A negative duration produces an already expired token.
func (v *JWTVerifier) Generate(subject string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
