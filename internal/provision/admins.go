// ABOUTME: Admin management operations: list, revoke and first-admin bootstrap
// ABOUTME: List and revoke require an admin caller; bootstrap is for local operators only

package provision

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/store"
)

// Admin is a user holding the admin role.
type Admin struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	GrantedAt time.Time `json:"granted_at"`
}

// ListAdmins returns every admin, ordered by email.
func (s *Service) ListAdmins(ctx context.Context, token string) ([]Admin, error) {
	if _, err := s.Authorize(ctx, token); err != nil {
		return nil, err
	}

	holders, err := s.repo.ListRoleHolders(ctx, store.RoleAdmin)
	if err != nil {
		s.logger.Error("listing admins failed", "error", err)
		return nil, &InternalError{Message: "Failed to list admins", Err: err}
	}

	admins := make([]Admin, 0, len(holders))
	for _, h := range holders {
		admins = append(admins, Admin{
			UserID:    h.UserID,
			Email:     h.Email,
			FullName:  h.FullName,
			GrantedAt: h.GrantedAt,
		})
	}
	return admins, nil
}

// RevokeAdmin removes every admin grant held by userID. Callers cannot revoke
// themselves, which keeps at least one admin able to manage the rest.
func (s *Service) RevokeAdmin(ctx context.Context, token, userID string) error {
	caller, err := s.Authorize(ctx, token)
	if err != nil {
		return err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return &ValidationError{Field: FieldUserID, Message: "User ID is required"}
	}
	if userID == caller.IdentityID {
		return &ValidationError{Field: FieldUserID, Message: "You cannot revoke your own admin role"}
	}

	removed, err := s.repo.DeleteRoleGrants(ctx, userID, store.RoleAdmin)
	if err != nil {
		s.logger.Error("revoking admin failed", "user_id", userID, "error", err)
		return &InternalError{Message: "Failed to revoke admin role", Err: err}
	}
	if removed == 0 {
		return &NotFoundError{Message: "User is not an admin"}
	}

	entry := &store.AuditEntry{
		ActorID:  caller.IdentityID,
		Action:   store.AuditRevokeAdmin,
		TargetID: userID,
		Detail:   map[string]any{"grants_removed": removed},
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to append audit log", "action", entry.Action, "target", userID, "error", err)
	}

	s.logger.Info("admin revoked", "user_id", userID, "caller", caller.IdentityID, "grants_removed", removed)
	return nil
}

// Bootstrap makes the given account an admin without a caller token. An
// existing identity with the same email is promoted instead of recreated.
// A newly created identity is deleted if a later step fails.
func (s *Service) Bootstrap(ctx context.Context, req Request) (*Result, error) {
	req = req.Normalize()
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}

	created := true
	identity, err := s.provider.CreateIdentity(ctx, auth.CreateIdentityParams{
		Email:          req.Email,
		Password:       req.Password,
		EmailConfirmed: true,
		Metadata:       map[string]any{"full_name": req.FullName},
	})
	if errors.Is(err, store.ErrEmailExists) {
		identity, err = s.repo.GetIdentityByEmail(ctx, req.Email)
		created = false
		if err == nil {
			s.logger.Info("promoting existing identity", "user_id", identity.ID)
		}
	}
	if err != nil {
		return nil, &CreationError{Step: StepCreateIdentity, Message: err.Error(), Err: err}
	}

	if err := s.upsertProfile(ctx, identity.ID, req); err != nil {
		if created {
			s.recordCompensation(ctx, err, identity.ID, false)
		}
		return nil, err
	}

	if err := s.grantAdmin(ctx, identity.ID); err != nil {
		if created {
			s.recordCompensation(ctx, err, identity.ID, true)
		}
		return nil, err
	}

	result := &Result{UserID: identity.ID, Email: identity.Email, FullName: req.FullName}
	s.audit(ctx, store.AuditBootstrapAdmin, "", result)
	s.logger.Info("admin bootstrapped", "user_id", result.UserID, "new_identity", created)
	return result, nil
}
