package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/passcode"
)

func TestOTPIssue(t *testing.T) {
	t.Run("issues a six digit code with the configured ttl", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "s3cret")
		env.seedAssignment(10, employeeID)

		out, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}
		if !passcode.Valid(out.Code) {
			t.Fatalf("code %q is not a valid passcode", out.Code)
		}
		if want := env.clock.Now().Add(10 * time.Minute); !out.ExpiresAt.Equal(want) {
			t.Fatalf("expires at %v, want %v", out.ExpiresAt, want)
		}

		// The plaintext code must not be persisted.
		if got := env.repo.otps[0].CodeHash; got == out.Code {
			t.Fatal("plaintext code stored instead of its hash")
		}
	})

	t.Run("reissuing keeps earlier codes valid", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "s3cret")
		env.seedAssignment(10, employeeID)

		first, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("first issue: %v", err)
		}
		if _, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10}); err != nil {
			t.Fatalf("second issue: %v", err)
		}

		if _, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: first.Code}); err != nil {
			t.Fatalf("consume first code after reissue: %v", err)
		}
	})

	t.Run("rejects a credential without passcode gating", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 11, false, "plain")
		env.seedAssignment(11, employeeID)

		_, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 11})
		assertCode(t, err, goerror.CodeInvalidInput)
	})

	t.Run("rejects a user without an assignment", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "s3cret")
		env.seedAssignment(10, employeeID)

		_, err := env.uc.OTPIssue(authCtx(otherID), OTPIssueInput{CredentialID: 10})
		assertCode(t, err, goerror.CodeForbidden)
	})

	t.Run("rejects an unknown credential", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 999})
		assertCode(t, err, goerror.CodeNotFound)
	})

	t.Run("rejects an unauthenticated caller", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "s3cret")

		_, err := env.uc.OTPIssue(t.Context(), OTPIssueInput{CredentialID: 10})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("caps outstanding passcodes per credential and user", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "s3cret")
		env.seedAssignment(10, employeeID)

		for i := 0; i < maxOutstandingPasscodes; i++ {
			if _, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10}); err != nil {
				t.Fatalf("issue %d: %v", i+1, err)
			}
		}

		_, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		assertCode(t, err, goerror.CodeTooManyRequest)

		// Expiry frees the budget.
		env.clock.Advance(11 * time.Minute)
		if _, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10}); err != nil {
			t.Fatalf("issue after expiry: %v", err)
		}
	})
}

func TestOTPConsume(t *testing.T) {
	t.Run("round trip mints a working reveal token", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "hunter2")
		env.seedAssignment(10, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}

		consumed, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: issued.Code})
		if err != nil {
			t.Fatalf("OTPConsume: %v", err)
		}
		if consumed.RevealToken == "" {
			t.Fatal("empty reveal token")
		}

		revealed, err := env.uc.Reveal(authCtx(employeeID), RevealInput{CredentialID: 10, RevealToken: consumed.RevealToken})
		if err != nil {
			t.Fatalf("Reveal: %v", err)
		}
		if revealed.Secret != "hunter2" {
			t.Fatalf("secret = %q, want %q", revealed.Secret, "hunter2")
		}
	})

	t.Run("second consume of the same code is already used", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "hunter2")
		env.seedAssignment(10, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}
		if _, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: issued.Code}); err != nil {
			t.Fatalf("first consume: %v", err)
		}

		_, err = env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: issued.Code})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("unknown code is not recognized and mutates nothing", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "hunter2")
		env.seedAssignment(10, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}

		wrong := "123456"
		if wrong == issued.Code {
			wrong = "123457"
		}
		_, err = env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: wrong})
		assertCode(t, err, goerror.CodeNotFound)

		// The real code still works.
		if _, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: issued.Code}); err != nil {
			t.Fatalf("consume after failed guess: %v", err)
		}
	})

	t.Run("code is rejected at its exact expiry instant", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "hunter2")
		env.seedAssignment(10, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}

		env.clock.Advance(10 * time.Minute)
		_, err = env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: issued.Code})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("malformed code fails validation", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: "12ab56"})
		assertCode(t, err, goerror.CodeInvalidInput)
	})

	t.Run("revoked user cannot finish an in-flight flow", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "hunter2")
		env.seedAssignment(10, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}

		if err := env.uc.Revoke(authCtx(adminID), RevokeInput{CredentialID: 10, UserID: employeeID}); err != nil {
			t.Fatalf("Revoke: %v", err)
		}

		_, err = env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: issued.Code})
		assertCode(t, err, goerror.CodeForbidden)
	})

	t.Run("concurrent consumes of one code yield one winner", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 10, true, "hunter2")
		env.seedAssignment(10, employeeID)

		issued, err := env.uc.OTPIssue(authCtx(employeeID), OTPIssueInput{CredentialID: 10})
		if err != nil {
			t.Fatalf("OTPIssue: %v", err)
		}

		const callers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := env.uc.OTPConsume(authCtx(employeeID), OTPConsumeInput{CredentialID: 10, Code: issued.Code}); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("winners = %d, want exactly 1", wins)
		}
	})
}
