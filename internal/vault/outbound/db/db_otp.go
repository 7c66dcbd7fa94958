package db

import (
	"context"
	"time"

	"github.com/keyfold/keyfold/internal/vault/entity"
)

func (s *DB) CreateOTPRequest(ctx context.Context, in entity.OTPRequest) (err error) {
	ctx, span := s.startSpan(ctx, "CreateOTPRequest")
	defer func() { s.endSpan(span, err) }()

	const query = `
		INSERT INTO vault_otp_requests (id, credential_id, requested_by, code_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.conn.Exec(ctx, query, in.ID, in.CredentialID, in.RequestedBy, in.CodeHash, in.ExpiresAt)
	return s.mapError(err)
}

func (s *DB) CountOutstandingOTPRequests(ctx context.Context, credentialID, userID int64, now time.Time) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CountOutstandingOTPRequests")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT COUNT(*)
		FROM vault_otp_requests
		WHERE credential_id = $1 AND requested_by = $2 AND used = FALSE AND expires_at > $3`

	var count int64
	if err = s.conn.QueryRow(ctx, query, credentialID, userID, now).Scan(&count); err != nil {
		return 0, s.mapError(err)
	}

	return count, nil
}

// ConsumeOTPRequest flips used in a single conditional statement so that two
// concurrent submissions of the same code are serialized by the database:
// exactly one observes used=FALSE and wins, the other gets no row. Expired
// requests never match and are therefore never marked used.
func (s *DB) ConsumeOTPRequest(ctx context.Context, credentialID, userID int64, codeHash string, now time.Time) (_ *entity.OTPRequest, err error) {
	ctx, span := s.startSpan(ctx, "ConsumeOTPRequest")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE vault_otp_requests
		SET used = TRUE
		WHERE id = (
			SELECT id FROM vault_otp_requests
			WHERE credential_id = $1 AND requested_by = $2 AND code_hash = $3
			  AND used = FALSE AND expires_at > $4
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, credential_id, requested_by, code_hash, created_at, expires_at, used`

	var r entity.OTPRequest
	err = s.conn.QueryRow(ctx, query, credentialID, userID, codeHash, now).Scan(
		&r.ID,
		&r.CredentialID,
		&r.RequestedBy,
		&r.CodeHash,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.Used,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &r, nil
}

// LookupOTPRequest is the read-only diagnostic used to classify a failed
// consume. It never mutates state.
func (s *DB) LookupOTPRequest(ctx context.Context, credentialID, userID int64, codeHash string) (_ *entity.OTPRequest, err error) {
	ctx, span := s.startSpan(ctx, "LookupOTPRequest")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, credential_id, requested_by, code_hash, created_at, expires_at, used
		FROM vault_otp_requests
		WHERE credential_id = $1 AND requested_by = $2 AND code_hash = $3
		ORDER BY created_at DESC
		LIMIT 1`

	var r entity.OTPRequest
	err = s.conn.QueryRow(ctx, query, credentialID, userID, codeHash).Scan(
		&r.ID,
		&r.CredentialID,
		&r.RequestedBy,
		&r.CodeHash,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.Used,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &r, nil
}

func (s *DB) CreateRevealGrant(ctx context.Context, in entity.RevealGrant) (err error) {
	ctx, span := s.startSpan(ctx, "CreateRevealGrant")
	defer func() { s.endSpan(span, err) }()

	const query = `
		INSERT INTO vault_reveal_grants (id, credential_id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.conn.Exec(ctx, query, in.ID, in.CredentialID, in.UserID, in.TokenHash, in.ExpiresAt)
	return s.mapError(err)
}

// ConsumeRevealGrant deletes the grant in one statement; the delete doubles
// as the single-use check. Returns false when no live grant matched.
func (s *DB) ConsumeRevealGrant(ctx context.Context, credentialID, userID int64, tokenHash string, now time.Time) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "ConsumeRevealGrant")
	defer func() { s.endSpan(span, err) }()

	const query = `
		DELETE FROM vault_reveal_grants
		WHERE credential_id = $1 AND user_id = $2 AND token_hash = $3 AND expires_at > $4`

	tag, err := s.conn.Exec(ctx, query, credentialID, userID, tokenHash, now)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}
