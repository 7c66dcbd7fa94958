package usecase

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

func TestAuditExport(t *testing.T) {
	t.Run("exports the range as csv and signs the url", func(t *testing.T) {
		env := newTestEnv(t)
		base := env.clock.Now()

		env.repo.audits = []entity.AuditEvent{
			{ID: 1, CredentialID: 10, ActorID: employeeID, Action: entity.AuditOTPIssued,
				Metadata: valueobject.JSONMap{"otp_request_id": int64(900)}, CreatedAt: base.Add(-2 * time.Hour)},
			{ID: 2, CredentialID: 10, ActorID: employeeID, Action: entity.AuditSecretRevealed,
				Metadata: valueobject.JSONMap{"otp_gated": true}, CreatedAt: base.Add(-time.Hour)},
			// Outside the requested range.
			{ID: 3, CredentialID: 11, ActorID: otherID, Action: entity.AuditAssignmentCreated,
				CreatedAt: base.Add(time.Hour)},
		}

		out, err := env.uc.AuditExport(authCtx(adminID), AuditExportInput{
			From: base.Add(-24 * time.Hour),
			To:   base,
		})
		if err != nil {
			t.Fatalf("AuditExport: %v", err)
		}
		if out.Rows != 2 {
			t.Fatalf("rows = %d, want 2", out.Rows)
		}
		if !strings.HasPrefix(out.DownloadURL, "https://files.test/keyfold-exports/audit/") {
			t.Fatalf("unexpected download url %q", out.DownloadURL)
		}
		if want := env.clock.Now().Add(15 * time.Minute); !out.ExpiresAt.Equal(want) {
			t.Fatalf("expires at %v, want %v", out.ExpiresAt, want)
		}

		if len(env.storage.objects) != 1 {
			t.Fatalf("stored objects = %d, want 1", len(env.storage.objects))
		}
		var data []byte
		for _, v := range env.storage.objects {
			data = v
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("parse csv: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("csv rows = %d, want header plus 2", len(records))
		}
		if got, want := strings.Join(records[0], ","), "id,credential_id,actor_id,action,metadata,created_at"; got != want {
			t.Fatalf("header = %q, want %q", got, want)
		}
		if records[1][3] != "otp_issued" || records[2][3] != "secret_revealed" {
			t.Fatalf("actions = %q, %q", records[1][3], records[2][3])
		}
	})

	t.Run("empty range still produces a csv with the header", func(t *testing.T) {
		env := newTestEnv(t)
		base := env.clock.Now()

		out, err := env.uc.AuditExport(authCtx(adminID), AuditExportInput{
			From: base.Add(-time.Hour),
			To:   base,
		})
		if err != nil {
			t.Fatalf("AuditExport: %v", err)
		}
		if out.Rows != 0 {
			t.Fatalf("rows = %d, want 0", out.Rows)
		}
	})

	t.Run("inverted range fails validation", func(t *testing.T) {
		env := newTestEnv(t)
		base := env.clock.Now()

		_, err := env.uc.AuditExport(authCtx(adminID), AuditExportInput{From: base, To: base.Add(-time.Hour)})
		assertCode(t, err, goerror.CodeInvalidInput)
	})

	t.Run("non admin is forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		base := env.clock.Now()

		_, err := env.uc.AuditExport(authCtx(employeeID), AuditExportInput{From: base.Add(-time.Hour), To: base})
		assertCode(t, err, goerror.CodeForbidden)
	})
}
