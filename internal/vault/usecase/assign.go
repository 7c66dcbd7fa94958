package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/idempotency"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/shared/constant"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

type (
	AssignInput struct {
		CredentialID int64   `validate:"required,gt=0"`
		GranteeIDs   []int64 `validate:"required,min=1,max=100,unique,dive,gt=0"`
	}

	AssignOutput struct {
		Assigned int
	}
)

// Assign grants one or more users access to a credential. The batch is all
// or nothing: if any grantee already holds the credential the whole request
// is rejected. Grantees are notified out of band; a notification failure
// never rolls back the grant.
func (s *Usecase) Assign(ctx context.Context, in AssignInput) (*AssignOutput, error) {
	ctx, span := s.startSpan(ctx, "Assign")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	clm, err := s.authenticatedAndAuthorized(ctx, constant.PermVaultAssignments, constant.PermActCreate)
	if err != nil {
		return nil, err
	}

	if _, err := s.repoDB.GetCredentialByID(ctx, in.CredentialID); err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			return nil, goerror.NewBusiness("Credential not found", goerror.CodeNotFound)
		}
		slog.ErrorContext(ctx, "failed to repo get credential", "credential_id", in.CredentialID, "error", err)
		return nil, goerror.NewServer(err)
	}

	ins := make([]entity.NewAssignment, 0, len(in.GranteeIDs))
	for _, granteeID := range in.GranteeIDs {
		ins = append(ins, entity.NewAssignment{
			ID:           s.uid.Generate(),
			CredentialID: in.CredentialID,
			UserID:       granteeID,
			AssignedBy:   clm.UserID,
		})
	}

	err = s.idemp.Exec(ctx, assignIdempotencyKey(in), func(ctx context.Context) error {
		return s.repoDB.CreateAssignments(ctx, ins)
	})
	switch {
	case err == nil:
	case errors.Is(err, goerror.ErrConflict):
		slog.WarnContext(ctx, "credential already assigned to a grantee",
			"credential_id", in.CredentialID, "grantee_ids", in.GranteeIDs)
		return nil, goerror.NewBusiness("Credential already assigned to one of the users", goerror.CodeConflict)
	case errors.Is(err, idempotency.ErrAlreadyInProgress),
		errors.Is(err, idempotency.ErrAlreadyCompleted),
		errors.Is(err, idempotency.ErrAlreadyFailed):
		slog.WarnContext(ctx, "duplicate assignment request suppressed",
			"credential_id", in.CredentialID, "grantee_ids", in.GranteeIDs)
		return nil, goerror.NewBusiness("Assignment request already processed", goerror.CodeConflict)
	default:
		slog.ErrorContext(ctx, "failed to repo create assignments",
			"credential_id", in.CredentialID, "error", err)
		return nil, goerror.NewServer(err)
	}

	for _, a := range ins {
		s.audit(ctx, in.CredentialID, clm.UserID, entity.AuditAssignmentCreated, valueobject.JSONMap{
			"assignment_id": a.ID,
			"grantee_id":    a.UserID,
		})
	}

	if err := s.repoMessaging.PublishAssignmentCreated(ctx, AssignmentCreatedEvent{
		CredentialID: in.CredentialID,
		GranteeIDs:   in.GranteeIDs,
		AssignedBy:   clm.UserID,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to publish assignment created",
			"credential_id", in.CredentialID, "error", err)
	}

	return &AssignOutput{Assigned: len(ins)}, nil
}

func assignIdempotencyKey(in AssignInput) string {
	sorted := slices.Clone(in.GranteeIDs)
	slices.Sort(sorted)

	ids := make([]string, 0, len(sorted))
	for _, id := range sorted {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("vault:assign:%d:%s", in.CredentialID, strings.Join(ids, ","))
}
