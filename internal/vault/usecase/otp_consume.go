package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

type (
	OTPConsumeInput struct {
		CredentialID int64  `validate:"required,gt=0"`
		Code         string `validate:"required,len=6,numeric"`
	}

	OTPConsumeOutput struct {
		RevealToken string
		ExpiresAt   time.Time
	}
)

// OTPConsume redeems a passcode for a short-lived, single-use reveal grant.
// The state flip happens in one conditional database statement, so when the
// same code is submitted concurrently at most one caller wins; everyone else
// is told the code is already used.
func (s *Usecase) OTPConsume(ctx context.Context, in OTPConsumeInput) (*OTPConsumeOutput, error) {
	ctx, span := s.startSpan(ctx, "OTPConsume")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	clm, err := s.authenticated(ctx)
	if err != nil {
		return nil, err
	}

	cred, err := s.authorizeAccess(ctx, in.CredentialID, clm.UserID)
	if err != nil {
		return nil, err
	}

	if !cred.OTPRequired {
		return nil, goerror.NewBusiness("Credential does not require a passcode", goerror.CodeInvalidInput)
	}

	codeHash, err := s.hmac.Hash(in.Code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash passcode", "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	req, err := s.repoDB.ConsumeOTPRequest(ctx, in.CredentialID, clm.UserID, string(codeHash), now)
	if err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			return nil, s.classifyConsumeMiss(ctx, in.CredentialID, clm.UserID, string(codeHash), now)
		}
		slog.ErrorContext(ctx, "failed to repo consume passcode",
			"credential_id", in.CredentialID, "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	token := s.oid.Generate()
	tokenHash, err := s.hmac.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash reveal token", "error", err)
		return nil, goerror.NewServer(err)
	}

	grant := entity.RevealGrant{
		ID:           s.uid.Generate(),
		CredentialID: in.CredentialID,
		UserID:       clm.UserID,
		TokenHash:    string(tokenHash),
		ExpiresAt:    now.Add(s.cfg.GetSecond("modules.vault.reveal_ttl_seconds")),
	}
	if err := s.repoDB.CreateRevealGrant(ctx, grant); err != nil {
		slog.ErrorContext(ctx, "failed to repo create reveal grant",
			"credential_id", in.CredentialID, "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.audit(ctx, in.CredentialID, clm.UserID, entity.AuditOTPConsumed, valueobject.JSONMap{
		"otp_request_id": req.ID,
	})

	return &OTPConsumeOutput{RevealToken: token, ExpiresAt: grant.ExpiresAt}, nil
}

// classifyConsumeMiss explains why the conditional consume matched nothing.
// The lookup is read-only; a decided outcome never changes after the fact.
func (s *Usecase) classifyConsumeMiss(ctx context.Context, credentialID, userID int64, codeHash string, now time.Time) error {
	req, err := s.repoDB.LookupOTPRequest(ctx, credentialID, userID, codeHash)
	if err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			slog.WarnContext(ctx, "passcode not recognized",
				"credential_id", credentialID, "user_id", userID)
			return goerror.NewBusiness("Passcode not recognized", goerror.CodeNotFound)
		}
		slog.ErrorContext(ctx, "failed to repo lookup passcode",
			"credential_id", credentialID, "user_id", userID, "error", err)
		return goerror.NewServer(err)
	}

	if req.Used {
		slog.WarnContext(ctx, "passcode already used",
			"credential_id", credentialID, "user_id", userID, "otp_request_id", req.ID)
		return goerror.NewBusiness("Passcode already used", goerror.CodeUnauthorized)
	}

	if !now.Before(req.ExpiresAt) {
		slog.WarnContext(ctx, "passcode expired",
			"credential_id", credentialID, "user_id", userID, "otp_request_id", req.ID)
		return goerror.NewBusiness("Passcode expired", goerror.CodeUnauthorized)
	}

	slog.ErrorContext(ctx, "passcode consume missed but request looks valid",
		"credential_id", credentialID, "user_id", userID, "otp_request_id", req.ID)
	return goerror.NewBusiness("Passcode already used", goerror.CodeUnauthorized)
}
