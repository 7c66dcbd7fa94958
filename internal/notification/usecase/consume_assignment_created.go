package usecase

import (
	"context"
	"errors"
	"html/template"
	"log/slog"

	"github.com/keyfold/keyfold/internal/notification/entity"
	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/mail"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
)

type ConsumeAssignmentCreatedInput struct {
	CredentialID int64   `validate:"required,gt=0"`
	GranteeIDs   []int64 `validate:"required,min=1,dive,gt=0"`
	AssignedBy   int64   `validate:"required,gt=0"`
}

const assignmentEmailBody = `
<p>Hi {{.grantee_name}},</p>
<p>{{.assigner_name}} shared the credential for <b>{{.website_name}}</b> with you.</p>
<p>Open the vault to view it: <a href="{{.vault_url}}">{{.vault_url}}</a></p>
<p>{{.company_name}} &middot; {{.year}}</p>`

// ConsumeAssignmentCreated notifies each grantee of their new access. Every
// grantee is handled independently; one dead mailbox never blocks the rest.
// Returning nil acks the message, so permanent failures are only logged.
func (s *Usecase) ConsumeAssignmentCreated(ctx context.Context, in ConsumeAssignmentCreatedInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeAssignmentCreated")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "error", err)
		return nil
	}

	cred, err := s.repoDB.GetCredentialSummary(ctx, in.CredentialID)
	if err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			slog.WarnContext(ctx, "credential gone before notification", "credential_id", in.CredentialID)
			return nil
		}
		slog.ErrorContext(ctx, "failed to repo get credential summary", "credential_id", in.CredentialID, "error", err)
		return err
	}

	assignerName := "An administrator"
	if assigner, err := s.repoDB.GetGranteeByID(ctx, in.AssignedBy); err == nil {
		assignerName = assigner.FullName
	}

	for _, granteeID := range in.GranteeIDs {
		s.notifyGrantee(ctx, cred, granteeID, assignerName)
	}

	return nil
}

func (s *Usecase) notifyGrantee(ctx context.Context, cred *entity.CredentialSummary, granteeID int64, assignerName string) {
	grantee, err := s.repoDB.GetGranteeByID(ctx, granteeID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get grantee", "user_id", granteeID, "error", err)
		return
	}

	data := s.baseEmailTemplateData()
	data["grantee_name"] = grantee.FullName
	data["assigner_name"] = assignerName
	data["website_name"] = cred.WebsiteName
	data["vault_url"] = s.cfg.GetString("app.web")

	body, err := s.renderTemplate("assignment_created", assignmentEmailBody, data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render assignment email", "user_id", granteeID, "error", err)
		return
	}

	dl := entity.CreateDeliveryLog{
		ID:           s.uid.Generate(),
		CredentialID: cred.ID,
		UserID:       granteeID,
		Channel:      "email",
		Status:       entity.DeliveryStatusQueued,
	}
	if err := s.repoDB.CreateDeliveryLog(ctx, dl); err != nil {
		slog.ErrorContext(ctx, "failed to repo create delivery log",
			"credential_id", cred.ID, "user_id", granteeID, "error", err)
		return
	}

	mailErr := s.repoMail.Send(ctx, mail.Message{
		To:       []string{grantee.Email},
		Subject:  "A credential was shared with you: " + template.HTMLEscapeString(cred.WebsiteName),
		HTMLBody: body,
	})
	if mailErr != nil {
		up := entity.UpdateDeliveryLog{
			ID:               dl.ID,
			Status:           entity.DeliveryStatusFailed,
			ProviderResponse: valueobject.JSONMap{"error": mailErr.Error()},
		}
		if err := s.repoDB.UpdateDeliveryLogStatus(ctx, up); err != nil {
			slog.ErrorContext(ctx, "failed to repo update delivery log status failed", "log_id", dl.ID, "error", err)
		}
		slog.ErrorContext(ctx, "failed to send assignment email",
			"credential_id", cred.ID, "user_id", granteeID, "error", mailErr)
		return
	}

	now := s.clock.Now()
	up := entity.UpdateDeliveryLog{
		ID:               dl.ID,
		Status:           entity.DeliveryStatusSent,
		ProviderResponse: valueobject.JSONMap{},
		DeliveredAt:      &now,
	}
	if err := s.repoDB.UpdateDeliveryLogStatus(ctx, up); err != nil {
		slog.ErrorContext(ctx, "failed to repo update delivery log status sent", "log_id", dl.ID, "error", err)
	}

	marked, err := s.repoDB.MarkNotificationSent(ctx, cred.ID, granteeID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo mark notification sent",
			"credential_id", cred.ID, "user_id", granteeID, "error", err)
		return
	}
	if !marked {
		slog.WarnContext(ctx, "assignment revoked before notification flag was set",
			"credential_id", cred.ID, "user_id", granteeID)
	}
}
