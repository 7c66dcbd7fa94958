package db

import (
	"context"

	"github.com/keyfold/keyfold/internal/notification/entity"
)

func (s *DB) CreateDeliveryLog(ctx context.Context, in entity.CreateDeliveryLog) (err error) {
	ctx, span := s.startSpan(ctx, "CreateDeliveryLog")
	defer func() { s.endSpan(span, err) }()

	const query = `
		INSERT INTO vault_notification_deliveries (id, credential_id, user_id, channel, status)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.conn.Exec(ctx, query, in.ID, in.CredentialID, in.UserID, in.Channel, in.Status.String())
	return s.mapError(err)
}

func (s *DB) UpdateDeliveryLogStatus(ctx context.Context, in entity.UpdateDeliveryLog) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateDeliveryLogStatus")
	defer func() { s.endSpan(span, err) }()

	const query = `
		UPDATE vault_notification_deliveries
		SET status = $2, provider_response = $3, delivered_at = $4
		WHERE id = $1`

	_, err = s.conn.Exec(ctx, query, in.ID, in.Status.String(), in.ProviderResponse, in.DeliveredAt)
	return s.mapError(err)
}
