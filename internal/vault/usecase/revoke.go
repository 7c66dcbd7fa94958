package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/shared/constant"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

type RevokeInput struct {
	CredentialID int64 `validate:"required,gt=0"`
	UserID       int64 `validate:"required,gt=0"`
}

// Revoke removes a user's access to a credential. Unused passcodes and
// reveal grants for the pair die with the assignment, so a revoked user
// cannot finish an in-flight passcode flow.
func (s *Usecase) Revoke(ctx context.Context, in RevokeInput) error {
	ctx, span := s.startSpan(ctx, "Revoke")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	clm, err := s.authenticatedAndAuthorized(ctx, constant.PermVaultAssignments, constant.PermActDelete)
	if err != nil {
		return err
	}

	if _, err := s.repoDB.GetCredentialByID(ctx, in.CredentialID); err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			return goerror.NewBusiness("Credential not found", goerror.CodeNotFound)
		}
		slog.ErrorContext(ctx, "failed to repo get credential", "credential_id", in.CredentialID, "error", err)
		return goerror.NewServer(err)
	}

	deleted, err := s.repoDB.DeleteAssignment(ctx, in.CredentialID, in.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo delete assignment",
			"credential_id", in.CredentialID, "user_id", in.UserID, "error", err)
		return goerror.NewServer(err)
	}
	if !deleted {
		slog.WarnContext(ctx, "assignment not found for revoke",
			"credential_id", in.CredentialID, "user_id", in.UserID)
		return goerror.NewBusiness("Assignment not found", goerror.CodeNotFound)
	}

	s.audit(ctx, in.CredentialID, clm.UserID, entity.AuditAssignmentRevoked, valueobject.JSONMap{
		"grantee_id": in.UserID,
	})

	return nil
}
