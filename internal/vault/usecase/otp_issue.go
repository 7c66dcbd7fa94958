package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

// maxOutstandingPasscodes caps unexpired, unused passcodes per
// (credential, user) pair so repeated issuance cannot grow the table
// without bound.
const maxOutstandingPasscodes = 10

type (
	OTPIssueInput struct {
		CredentialID int64 `validate:"required,gt=0"`
	}

	OTPIssueOutput struct {
		Code      string
		ExpiresAt time.Time
	}
)

// OTPIssue generates a fresh passcode for an assigned, passcode-gated
// credential. Issuing again before an earlier code expires is allowed; each
// code is independent and single-use.
func (s *Usecase) OTPIssue(ctx context.Context, in OTPIssueInput) (*OTPIssueOutput, error) {
	ctx, span := s.startSpan(ctx, "OTPIssue")
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

	now := s.clock.Now()
	outstanding, err := s.repoDB.CountOutstandingOTPRequests(ctx, in.CredentialID, clm.UserID, now)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo count outstanding passcodes",
			"credential_id", in.CredentialID, "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}
	if outstanding >= maxOutstandingPasscodes {
		slog.WarnContext(ctx, "too many outstanding passcodes",
			"credential_id", in.CredentialID, "user_id", clm.UserID, "outstanding", outstanding)
		return nil, goerror.NewBusiness("Too many active passcodes, wait for one to expire", goerror.CodeTooManyRequest)
	}

	code, err := s.passcode.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate passcode", "error", err)
		return nil, goerror.NewServer(err)
	}

	codeHash, err := s.hmac.Hash(code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash passcode", "error", err)
		return nil, goerror.NewServer(err)
	}

	req := entity.OTPRequest{
		ID:           s.uid.Generate(),
		CredentialID: in.CredentialID,
		RequestedBy:  clm.UserID,
		CodeHash:     string(codeHash),
		ExpiresAt:    now.Add(s.cfg.GetMinute("modules.vault.otp_ttl_minutes")),
	}
	if err := s.repoDB.CreateOTPRequest(ctx, req); err != nil {
		slog.ErrorContext(ctx, "failed to repo create passcode request",
			"credential_id", in.CredentialID, "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.audit(ctx, in.CredentialID, clm.UserID, entity.AuditOTPIssued, valueobject.JSONMap{
		"otp_request_id": req.ID,
		"expires_at":     req.ExpiresAt,
	})

	return &OTPIssueOutput{Code: code, ExpiresAt: req.ExpiresAt}, nil
}
