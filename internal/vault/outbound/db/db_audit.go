package db

import (
	"context"
	"time"

	"github.com/keyfold/keyfold/internal/vault/entity"
)

func (s *DB) CreateAuditEvent(ctx context.Context, in entity.AuditEvent) (err error) {
	ctx, span := s.startSpan(ctx, "CreateAuditEvent")
	defer func() { s.endSpan(span, err) }()

	const query = `
		INSERT INTO vault_audit_events (id, credential_id, actor_id, action, metadata)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.conn.Exec(ctx, query, in.ID, in.CredentialID, in.ActorID, in.Action.String(), in.Metadata)
	return s.mapError(err)
}

// ListAuditEvents pages through the trail by (created_at, id) keyset so the
// export can stream arbitrarily large ranges.
func (s *DB) ListAuditEvents(ctx context.Context, from, to time.Time, afterID int64, limit int32) (_ []entity.AuditEvent, err error) {
	ctx, span := s.startSpan(ctx, "ListAuditEvents")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, credential_id, actor_id, action, metadata, created_at
		FROM vault_audit_events
		WHERE created_at >= $1 AND created_at < $2 AND id > $3
		ORDER BY id
		LIMIT $4`

	rows, err := s.conn.Query(ctx, query, from, to, afterID, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	result := make([]entity.AuditEvent, 0, limit)
	for rows.Next() {
		var (
			item   entity.AuditEvent
			action string
		)
		if err = rows.Scan(
			&item.ID,
			&item.CredentialID,
			&item.ActorID,
			&action,
			&item.Metadata,
			&item.CreatedAt,
		); err != nil {
			return nil, s.mapError(err)
		}
		item.Action = entity.AuditAction(action)
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return result, nil
}
