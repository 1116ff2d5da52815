// ABOUTME: Identity provider backed by the store: token resolution, account creation, sign-in
// ABOUTME: Issues HS256 bearer tokens whose subject is the identity ID

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hireteksolutions/CAP360-MAIN/internal/store"
)

// Provider errors
var (
	ErrUnknownIdentity    = errors.New("token subject does not exist")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("Email not confirmed")
)

// DefaultTokenTTL is used when the provider is created with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// CreateIdentityParams describes a new identity.
// EmailConfirmed skips the confirmation flow and is recorded on the identity.
type CreateIdentityParams struct {
	Email          string
	Password       string
	EmailConfirmed bool
	Metadata       map[string]any
}

// Token is an issued bearer credential.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
}

// Provider resolves bearer tokens to identities and creates new identities.
type Provider struct {
	identities store.IdentityStore
	tokens     TokenIssuer
	ttl        time.Duration
	logger     *slog.Logger
}

// NewProvider creates a Provider over identities that signs and checks
// bearer tokens with tokens.
func NewProvider(identities store.IdentityStore, tokens TokenIssuer, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Provider{
		identities: identities,
		tokens:     tokens,
		ttl:        ttl,
		logger:     slog.Default().With("component", "auth"),
	}
}

// VerifyToken resolves a bearer token to an existing identity.
func (p *Provider) VerifyToken(ctx context.Context, token string) (*store.Identity, error) {
	subject, err := p.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	identity, err := p.identities.GetIdentity(ctx, subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("resolving token subject: %w", err)
	}
	return identity, nil
}

// CreateIdentity hashes the password and stores a new identity.
// store.ErrEmailExists is returned unwrapped so its message reaches callers.
func (p *Provider) CreateIdentity(ctx context.Context, params CreateIdentityParams) (*store.Identity, error) {
	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	identity := &store.Identity{
		ID:             uuid.New().String(),
		Email:          params.Email,
		PasswordHash:   hash,
		EmailConfirmed: params.EmailConfirmed,
		Metadata:       params.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.identities.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}

	p.logger.Info("identity created",
		"user_id", identity.ID,
		"email_confirmed", identity.EmailConfirmed,
	)
	return identity, nil
}

// SignIn checks email and password and issues a bearer token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Token, error) {
	identity, err := p.identities.GetIdentityByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up identity: %w", err)
	}

	if !CheckPassword(identity.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !identity.EmailConfirmed {
		return nil, ErrEmailNotConfirmed
	}

	return p.IssueToken(identity.ID)
}

// IssueToken signs a bearer token for identityID.
func (p *Provider) IssueToken(identityID string) (*Token, error) {
	expiresAt := time.Now().Add(p.ttl)
	signed, err := p.tokens.Generate(identityID, p.ttl)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt.UTC().Truncate(time.Second),
		UserID:      identityID,
	}, nil
}
