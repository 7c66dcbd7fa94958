package usecase

import (
	"context"
	"log/slog"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/secrets"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

type (
	RevealInput struct {
		CredentialID int64 `validate:"required,gt=0"`
		// RevealToken is required for passcode-gated credentials and
		// ignored otherwise.
		RevealToken string
	}

	RevealOutput struct {
		WebsiteName string
		WebsiteURL  string
		Username    string
		Secret      string
		Notes       string
	}
)

// Reveal returns the decrypted secret. Non-gated credentials only need an
// active assignment; gated ones additionally spend the single-use grant
// minted by a passcode consumption.
func (s *Usecase) Reveal(ctx context.Context, in RevealInput) (*RevealOutput, error) {
	ctx, span := s.startSpan(ctx, "Reveal")
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

	if cred.OTPRequired {
		if in.RevealToken == "" {
			return nil, goerror.NewBusiness("Reveal authorization required", goerror.CodeUnauthorized)
		}

		tokenHash, err := s.hmac.Hash(in.RevealToken)
		if err != nil {
			slog.ErrorContext(ctx, "failed to hash reveal token", "error", err)
			return nil, goerror.NewServer(err)
		}

		ok, err := s.repoDB.ConsumeRevealGrant(ctx, in.CredentialID, clm.UserID, string(tokenHash), s.clock.Now())
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo consume reveal grant",
				"credential_id", in.CredentialID, "user_id", clm.UserID, "error", err)
			return nil, goerror.NewServer(err)
		}
		if !ok {
			slog.WarnContext(ctx, "reveal authorization rejected",
				"credential_id", in.CredentialID, "user_id", clm.UserID)
			return nil, goerror.NewBusiness("Reveal authorization invalid or expired", goerror.CodeUnauthorized)
		}
	}

	plaintext, err := s.encryptor.Decrypt(cred.Secret, secrets.Scope{
		CredentialID: cred.ID,
		Purpose:      secrets.PurposeCredentialSecret,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt credential secret",
			"credential_id", cred.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.audit(ctx, cred.ID, clm.UserID, entity.AuditSecretRevealed, valueobject.JSONMap{
		"otp_gated": cred.OTPRequired,
	})

	return &RevealOutput{
		WebsiteName: cred.WebsiteName,
		WebsiteURL:  cred.WebsiteURL,
		Username:    cred.Username,
		Secret:      string(plaintext),
		Notes:       cred.Notes,
	}, nil
}
