// ABOUTME: Compensating actions for partially provisioned admins
// ABOUTME: Removes the profile and identity written before a failed step when rollback is on

package provision

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// fail finalizes a CreationError raised after the identity exists. With
// rollback disabled the partial records are left in place and logged.
func (s *Service) fail(ctx context.Context, err error, userID string, profileWritten bool) error {
	var cerr *CreationError
	if !errors.As(err, &cerr) {
		return err
	}

	if !s.rollback {
		s.logger.Warn("partial provisioning left in place",
			"user_id", userID,
			"failed_step", cerr.Step,
		)
		return cerr
	}

	s.recordCompensation(ctx, cerr, userID, profileWritten)
	return cerr
}

// recordCompensation runs compensate and stores its outcome on the
// CreationError wrapped by err. Other errors still trigger the rollback.
func (s *Service) recordCompensation(ctx context.Context, err error, userID string, profileWritten bool) {
	cerr := s.compensate(ctx, userID, profileWritten)
	var creation *CreationError
	if errors.As(err, &creation) {
		creation.Compensation = cerr
		creation.RolledBack = cerr == nil
	}
}

// compensate deletes the records created for userID, newest first. Every
// action is attempted; their errors are joined.
func (s *Service) compensate(ctx context.Context, userID string, profileWritten bool) error {
	ctx, span := s.tracer.Start(ctx, "provision.compensate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("profile_written", profileWritten),
		))
	defer span.End()

	var errs []error
	if profileWritten {
		if err := s.repo.DeleteProfile(ctx, userID); err != nil {
			errs = append(errs, fmt.Errorf("deleting profile: %w", err))
		}
	}
	if err := s.repo.DeleteIdentity(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("deleting identity: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		s.logger.Error("rollback incomplete", "user_id", userID, "error", err)
		return err
	}

	s.logger.Info("rolled back partial provisioning", "user_id", userID)
	return nil
}
