package db

import (
	"context"

	"github.com/keyfold/keyfold/internal/vault/entity"
)

func (s *DB) GetCredentialByID(ctx context.Context, id int64) (_ *entity.Credential, err error) {
	ctx, span := s.startSpan(ctx, "GetCredentialByID")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, website_name, website_url, username, secret_enc, notes, otp_required, created_by, created_at, updated_at
		FROM vault_credentials
		WHERE id = $1`

	var c entity.Credential
	err = s.conn.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.WebsiteName,
		&c.WebsiteURL,
		&c.Username,
		&c.Secret,
		&c.Notes,
		&c.OTPRequired,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &c, nil
}
