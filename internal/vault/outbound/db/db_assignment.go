package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

func (s *DB) GetAssignment(ctx context.Context, credentialID, userID int64) (_ *entity.Assignment, err error) {
	ctx, span := s.startSpan(ctx, "GetAssignment")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT id, credential_id, user_id, assigned_by, assigned_at, notification_sent
		FROM vault_assignments
		WHERE credential_id = $1 AND user_id = $2`

	var a entity.Assignment
	err = s.conn.QueryRow(ctx, query, credentialID, userID).Scan(
		&a.ID,
		&a.CredentialID,
		&a.UserID,
		&a.AssignedBy,
		&a.AssignedAt,
		&a.NotificationSent,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &a, nil
}

func (s *DB) ListAssignments(ctx context.Context, credentialID int64) (_ []entity.AssignmentInfo, err error) {
	ctx, span := s.startSpan(ctx, "ListAssignments")
	defer func() { s.endSpan(span, err) }()

	const query = `
		SELECT a.id, a.credential_id, a.user_id, a.assigned_by, a.assigned_at, a.notification_sent, u.email, u.full_name
		FROM vault_assignments a
		JOIN vault_users u ON u.id = a.user_id
		WHERE a.credential_id = $1
		ORDER BY a.assigned_at, a.id`

	rows, err := s.conn.Query(ctx, query, credentialID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	result := make([]entity.AssignmentInfo, 0)
	for rows.Next() {
		var item entity.AssignmentInfo
		if err = rows.Scan(
			&item.ID,
			&item.CredentialID,
			&item.UserID,
			&item.AssignedBy,
			&item.AssignedAt,
			&item.NotificationSent,
			&item.UserEmail,
			&item.UserFullName,
		); err != nil {
			return nil, s.mapError(err)
		}
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return result, nil
}

// CreateAssignments inserts the batch in one transaction. Any existing
// (credential, user) pair violates the unique constraint and fails the whole
// batch with goerror.ErrConflict.
func (s *DB) CreateAssignments(ctx context.Context, ins []entity.NewAssignment) (err error) {
	ctx, span := s.startSpan(ctx, "CreateAssignments")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	const query = `
		INSERT INTO vault_assignments (id, credential_id, user_id, assigned_by)
		VALUES ($1, $2, $3, $4)`

	for _, in := range ins {
		if _, err = tx.Exec(ctx, query, in.ID, in.CredentialID, in.UserID, in.AssignedBy); err != nil {
			return s.mapError(err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}

// DeleteAssignment revokes the pair and cascades: outstanding unused
// passcodes and reveal grants for the same pair die in the same transaction.
// Returns false when no assignment row existed.
func (s *DB) DeleteAssignment(ctx context.Context, credentialID, userID int64) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "DeleteAssignment")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	tag, err := tx.Exec(ctx,
		`DELETE FROM vault_assignments WHERE credential_id = $1 AND user_id = $2`,
		credentialID, userID,
	)
	if err != nil {
		return false, s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM vault_otp_requests WHERE credential_id = $1 AND requested_by = $2 AND used = FALSE`,
		credentialID, userID,
	); err != nil {
		return false, s.mapError(err)
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM vault_reveal_grants WHERE credential_id = $1 AND user_id = $2`,
		credentialID, userID,
	); err != nil {
		return false, s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, s.mapError(err)
	}

	return true, nil
}
