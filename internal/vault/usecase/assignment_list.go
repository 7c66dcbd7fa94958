package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/shared/constant"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

type (
	AssignmentListInput struct {
		CredentialID int64 `validate:"required,gt=0"`
	}

	AssignmentListOutput struct {
		Assignments []entity.AssignmentInfo
	}
)

func (s *Usecase) AssignmentList(ctx context.Context, in AssignmentListInput) (*AssignmentListOutput, error) {
	ctx, span := s.startSpan(ctx, "AssignmentList")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if _, err := s.authenticatedAndAuthorized(ctx, constant.PermVaultAssignments, constant.PermActRead); err != nil {
		return nil, err
	}

	if _, err := s.repoDB.GetCredentialByID(ctx, in.CredentialID); err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			return nil, goerror.NewBusiness("Credential not found", goerror.CodeNotFound)
		}
		slog.ErrorContext(ctx, "failed to repo get credential", "credential_id", in.CredentialID, "error", err)
		return nil, goerror.NewServer(err)
	}

	list, err := s.repoDB.ListAssignments(ctx, in.CredentialID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list assignments", "credential_id", in.CredentialID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &AssignmentListOutput{Assignments: list}, nil
}
