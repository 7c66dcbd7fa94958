package usecase

import (
	"testing"
	"time"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

func TestReveal(t *testing.T) {
	t.Run("non gated credential reveals with just an assignment", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 20, false, "wiki-password")
		env.seedAssignment(20, employeeID)

		out, err := env.uc.Reveal(authCtx(employeeID), RevealInput{CredentialID: 20})
		if err != nil {
			t.Fatalf("Reveal: %v", err)
		}
		if out.Secret != "wiki-password" {
			t.Fatalf("secret = %q, want %q", out.Secret, "wiki-password")
		}
		if out.Username != "team@example.com" {
			t.Fatalf("username = %q, want %q", out.Username, "team@example.com")
		}

		actions := env.repo.auditActions()
		if len(actions) != 1 || actions[0] != entity.AuditSecretRevealed {
			t.Fatalf("audit trail = %v, want one secret_revealed", actions)
		}
	})

	t.Run("gated credential requires a reveal token", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 21, true, "prod-db")
		env.seedAssignment(21, employeeID)

		_, err := env.uc.Reveal(authCtx(employeeID), RevealInput{CredentialID: 21})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("reveal token is single use", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 21, true, "prod-db")
		env.seedAssignment(21, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 21})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}
		consumed, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 21, Code: issued.Code})
		if err != nil {
			t.Fatalf("OTPConsume: %v", err)
		}

		if _, err := env.uc.Reveal(authCtx(employeeID), RevealInput{CredentialID: 21, RevealToken: consumed.RevealToken}); err != nil {
			t.Fatalf("first reveal: %v", err)
		}

		_, err = env.uc.Reveal(authCtx(employeeID), RevealInput{CredentialID: 21, RevealToken: consumed.RevealToken})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("expired reveal token is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 21, true, "prod-db")
		env.seedAssignment(21, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 21})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}
		consumed, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 21, Code: issued.Code})
		if err != nil {
			t.Fatalf("OTPConsume: %v", err)
		}

		env.clock.Advance(61 * time.Second)
		_, err = env.uc.Reveal(authCtx(employeeID), RevealInput{CredentialID: 21, RevealToken: consumed.RevealToken})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("another user's token does not unlock the credential", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 21, true, "prod-db")
		env.seedAssignment(21, employeeID)
		env.seedAssignment(21, otherID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 21})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}
		consumed, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 21, Code: issued.Code})
		if err != nil {
			t.Fatalf("OTPConsume: %v", err)
		}

		_, err = env.uc.Reveal(authCtx(otherID), RevealInput{CredentialID: 21, RevealToken: consumed.RevealToken})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("unassigned user is refused before any grant check", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 20, false, "wiki-password")

		_, err := env.uc.Reveal(authCtx(otherID), RevealInput{CredentialID: 20})
		assertCode(t, err, goerror.CodeForbidden)
	})
}
