package db

import (
	"context"

	"github.com/keyfold/keyfold/internal/notification/entity"
)

func (s *DB) GetGranteeByID(ctx context.Context, id int64) (_ *entity.Grantee, err error) {
	ctx, span := s.startSpan(ctx, "GetGranteeByID")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, email, full_name
		FROM vault_users
		WHERE id = $1`

	var g entity.Grantee
	if err = s.conn.QueryRow(ctx, query, id).Scan(&g.ID, &g.Email, &g.FullName); err != nil {
		return nil, s.mapError(err)
	}

	return &g, nil
}

func (s *DB) GetCredentialSummary(ctx context.Context, id int64) (_ *entity.CredentialSummary, err error) {
	ctx, span := s.startSpan(ctx, "GetCredentialSummary")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, website_name, website_url
		FROM vault_credentials
		WHERE id = $1`

	var c entity.CredentialSummary
	if err = s.conn.QueryRow(ctx, query, id).Scan(&c.ID, &c.WebsiteName, &c.WebsiteURL); err != nil {
		return nil, s.mapError(err)
	}

	return &c, nil
}

// MarkNotificationSent flips the assignment flag once the grantee has been
// told about their new access. Returns false when the assignment is gone,
// which happens when access was revoked before the notification went out.
func (s *DB) MarkNotificationSent(ctx context.Context, credentialID, userID int64) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "MarkNotificationSent")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE vault_assignments
		SET notification_sent = TRUE
		WHERE credential_id = $1 AND user_id = $2`

	tag, err := s.conn.Exec(ctx, query, credentialID, userID)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}
