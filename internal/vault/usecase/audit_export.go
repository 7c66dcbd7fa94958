package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/storage"
	"github.com/keyfold/keyfold/internal/shared/constant"
)

const auditExportPageSize int32 = 1_000

type (
	AuditExportInput struct {
		From time.Time `validate:"required"`
		To   time.Time `validate:"required,gtfield=From"`
	}

	AuditExportOutput struct {
		DownloadURL string
		ExpiresAt   time.Time
		Rows        int
	}
)

// AuditExport writes the trail for a time range to object storage as CSV and
// returns a signed download URL.
func (s *Usecase) AuditExport(ctx context.Context, in AuditExportInput) (*AuditExportOutput, error) {
	ctx, span := s.startSpan(ctx, "AuditExport")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	clm, err := s.authenticatedAndAuthorized(ctx, constant.PermVaultAudit, constant.PermActExport)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "credential_id", "actor_id", "action", "metadata", "created_at"}); err != nil {
		return nil, goerror.NewServer(err)
	}

	var (
		afterID int64
		rows    int
	)
	for {
		events, err := s.repoDB.ListAuditEvents(ctx, in.From, in.To, afterID, auditExportPageSize)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo list audit events", "error", err)
			return nil, goerror.NewServer(err)
		}
		if len(events) == 0 {
			break
		}

		for _, ev := range events {
			meta, err := json.Marshal(ev.Metadata)
			if err != nil {
				return nil, goerror.NewServer(err)
			}
			record := []string{
				strconv.FormatInt(ev.ID, 10),
				strconv.FormatInt(ev.CredentialID, 10),
				strconv.FormatInt(ev.ActorID, 10),
				ev.Action.String(),
				string(meta),
				ev.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := w.Write(record); err != nil {
				return nil, goerror.NewServer(err)
			}
		}

		afterID = events[len(events)-1].ID
		rows += len(events)

		if int32(len(events)) < auditExportPageSize {
			break
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, goerror.NewServer(err)
	}

	bucket := strings.TrimSpace(s.cfg.GetString("modules.vault.audit_export_bucket"))
	key := fmt.Sprintf("audit/%s_%s_%s.csv",
		in.From.UTC().Format("20060102T150405Z"),
		in.To.UTC().Format("20060102T150405Z"),
		s.oid.Generate(),
	)

	if _, err := s.storage.PutObject(ctx, bucket, key, &buf, storage.PutOptions{
		Size:        int64(buf.Len()),
		ContentType: "text/csv",
		Metadata:    map[string]string{"exported_by": strconv.FormatInt(clm.UserID, 10)},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to upload audit export", "bucket", bucket, "key", key, "error", err)
		return nil, goerror.NewServer(err)
	}

	expiry := s.cfg.GetMinute("modules.vault.audit_export_url_ttl_minutes")
	url, err := s.storage.PresignGet(ctx, bucket, key, expiry)
	if err != nil {
		slog.ErrorContext(ctx, "failed to presign audit export", "bucket", bucket, "key", key, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &AuditExportOutput{
		DownloadURL: url,
		ExpiresAt:   s.clock.Now().Add(expiry),
		Rows:        rows,
	}, nil
}
