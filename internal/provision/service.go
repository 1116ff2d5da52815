// ABOUTME: Admin provisioning service: verify caller, check admin role, create the new admin
// ABOUTME: Creates identity, profile and role grant in strict order with optional rollback

package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/store"
)

const tracerName = "github.com/hireteksolutions/CAP360-MAIN/internal/provision"

// GrantPolicy controls what happens when the target already holds the admin role.
type GrantPolicy string

const (
	// GrantAppend always inserts a new grant; duplicates are possible.
	GrantAppend GrantPolicy = "append"
	// GrantSkipExisting inserts only when no admin grant exists yet.
	GrantSkipExisting GrantPolicy = "skip_existing"
)

// IdentityProvider resolves bearer tokens and creates identities.
type IdentityProvider interface {
	VerifyToken(ctx context.Context, token string) (*store.Identity, error)
	CreateIdentity(ctx context.Context, params auth.CreateIdentityParams) (*store.Identity, error)
}

// Repository is the data store the service writes to.
type Repository interface {
	store.ProfileStore
	store.RoleStore
	store.AuditStore
	GetIdentityByEmail(ctx context.Context, email string) (*store.Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// Options configures a Service.
type Options struct {
	// RollbackOnFailure deletes records written by earlier steps when a later
	// step fails.
	RollbackOnFailure bool
	RoleGrantPolicy   GrantPolicy
	TracerProvider    trace.TracerProvider
	Logger            *slog.Logger
}

// Result describes a newly provisioned admin.
type Result struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Service provisions and manages admin accounts.
type Service struct {
	provider IdentityProvider
	repo     Repository
	rollback bool
	policy   GrantPolicy
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewService creates a provisioning service.
func NewService(provider IdentityProvider, repo Repository, opts Options) *Service {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.RoleGrantPolicy
	if policy == "" {
		policy = GrantAppend
	}
	return &Service{
		provider: provider,
		repo:     repo,
		rollback: opts.RollbackOnFailure,
		policy:   policy,
		tracer:   tp.Tracer(tracerName),
		logger:   logger.With("component", "provision"),
	}
}

// ProvisionAdmin verifies the caller holds the admin role and then creates a
// new admin account. Each step short-circuits the rest on failure.
func (s *Service) ProvisionAdmin(ctx context.Context, token string, req Request) (*Result, error) {
	caller, err := s.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Provision(auth.WithAuth(ctx, caller), req)
}

// Authorize resolves token to an identity that holds the admin role.
func (s *Service) Authorize(ctx context.Context, token string) (*auth.AuthContext, error) {
	if token == "" {
		s.logger.Warn("auth failure", "reason", "missing token")
		return nil, &AuthenticationError{Message: "Missing bearer token"}
	}

	identity, err := s.verifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.checkRole(ctx, identity.ID); err != nil {
		return nil, err
	}

	return &auth.AuthContext{
		IdentityID: identity.ID,
		Email:      identity.Email,
		Roles:      []string{string(store.RoleAdmin)},
	}, nil
}

func (s *Service) verifyToken(ctx context.Context, token string) (*store.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "provision.verify_token")
	defer span.End()

	identity, err := s.provider.VerifyToken(ctx, token)
	if err != nil || identity == nil {
		s.logger.Warn("auth failure", "reason", "token verification failed", "error", err)
		authErr := &AuthenticationError{Message: "Invalid or expired token", Err: err}
		failSpan(span, authErr)
		return nil, authErr
	}

	span.SetAttributes(attribute.String("caller.id", identity.ID))
	return identity, nil
}

func (s *Service) checkRole(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "provision.check_role",
		trace.WithAttributes(attribute.String("caller.id", userID)))
	defer span.End()

	ok, err := s.repo.HasRole(ctx, userID, store.RoleAdmin)
	if err != nil {
		s.logger.Error("role check failed", "caller", userID, "error", err)
		permErr := &PermissionCheckError{Message: "Failed to verify permissions", Err: err}
		failSpan(span, permErr)
		return permErr
	}
	if !ok {
		s.logger.Warn("auth failure", "reason", "admin role required", "caller", userID)
		authzErr := &AuthorizationError{Message: "Forbidden: admin role required"}
		failSpan(span, authzErr)
		return authzErr
	}
	return nil
}

// Provision validates req and creates the identity, profile and admin grant on
// behalf of the caller attached to ctx by Authorize and auth.WithAuth.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	caller := auth.FromContext(ctx)
	if caller == nil {
		return nil, &AuthenticationError{Message: "Missing bearer token"}
	}
	if !caller.IsAdmin() {
		return nil, &AuthorizationError{Message: "Forbidden: admin role required"}
	}

	req = req.Normalize()

	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}

	identity, err := s.createIdentity(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.upsertProfile(ctx, identity.ID, req); err != nil {
		return nil, s.fail(ctx, err, identity.ID, false)
	}

	if err := s.grantAdmin(ctx, identity.ID); err != nil {
		return nil, s.fail(ctx, err, identity.ID, true)
	}

	result := &Result{UserID: identity.ID, Email: identity.Email, FullName: req.FullName}
	s.audit(ctx, store.AuditCreateAdmin, caller.IdentityID, result)

	s.logger.Info("admin provisioned",
		"user_id", result.UserID,
		"caller", caller.IdentityID,
		"caller_email", caller.Email,
	)
	return result, nil
}

func (s *Service) validate(ctx context.Context, req Request) error {
	_, span := s.tracer.Start(ctx, "provision.validate")
	defer span.End()

	if verr := req.Validate(); verr != nil {
		span.SetAttributes(attribute.String("validation.field", verr.Field))
		failSpan(span, verr)
		s.logger.Info("validation failed", "field", verr.Field)
		return verr
	}
	return nil
}

func (s *Service) createIdentity(ctx context.Context, req Request) (*store.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "provision.create_identity")
	defer span.End()

	identity, err := s.provider.CreateIdentity(ctx, auth.CreateIdentityParams{
		Email:          req.Email,
		Password:       req.Password,
		EmailConfirmed: true,
		Metadata:       map[string]any{"full_name": req.FullName},
	})
	if err != nil {
		s.logger.Warn("identity creation failed", "error", err)
		cerr := &CreationError{Step: StepCreateIdentity, Message: err.Error(), Err: err}
		failSpan(span, cerr)
		return nil, cerr
	}

	span.SetAttributes(attribute.String("user.id", identity.ID))
	return identity, nil
}

func (s *Service) upsertProfile(ctx context.Context, userID string, req Request) error {
	ctx, span := s.tracer.Start(ctx, "provision.upsert_profile",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	err := s.repo.UpsertProfile(ctx, &store.Profile{
		ID:       userID,
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		s.logger.Warn("profile upsert failed", "user_id", userID, "error", err)
		cerr := &CreationError{
			Step:    StepUpsertProfile,
			Message: fmt.Sprintf("Failed to upsert profile: %s", err.Error()),
			Err:     err,
		}
		failSpan(span, cerr)
		return cerr
	}
	return nil
}

// grantAdmin inserts the admin grant according to the configured policy.
func (s *Service) grantAdmin(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "provision.grant_role",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("grant.policy", string(s.policy)),
		))
	defer span.End()

	if s.policy == GrantSkipExisting {
		has, err := s.repo.HasRole(ctx, userID, store.RoleAdmin)
		if err != nil {
			return s.grantFailed(span, userID, err)
		}
		if has {
			span.SetAttributes(attribute.Bool("grant.skipped", true))
			s.logger.Info("admin grant already present", "user_id", userID)
			return nil
		}
	}

	err := s.repo.InsertRoleGrant(ctx, &store.RoleGrant{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      store.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return s.grantFailed(span, userID, err)
	}
	return nil
}

func (s *Service) grantFailed(span trace.Span, userID string, err error) error {
	s.logger.Warn("role grant failed", "user_id", userID, "error", err)
	cerr := &CreationError{
		Step:    StepGrantRole,
		Message: fmt.Sprintf("Failed to assign admin role: %s", err.Error()),
		Err:     err,
	}
	failSpan(span, cerr)
	return cerr
}

// audit records a completed mutation. Failures are logged, not returned: the
// mutation itself has already been committed.
func (s *Service) audit(ctx context.Context, action store.AuditAction, actorID string, r *Result) {
	entry := &store.AuditEntry{
		ActorID:  actorID,
		Action:   action,
		TargetID: r.UserID,
		Detail:   map[string]any{"email": r.Email, "full_name": r.FullName},
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to append audit log", "action", action, "target", r.UserID, "error", err)
	}
}

// failSpan marks span as failed with err.
func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if pe, ok := err.(Error); ok {
		span.SetAttributes(attribute.String("error.kind", string(pe.Kind())))
	}
}
