package mq

import (
	"context"
	"encoding/json"

	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/messaging"
	"github.com/keyfold/keyfold/internal/shared/event"
	"github.com/keyfold/keyfold/internal/vault/usecase"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client messaging.Messaging
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Messaging, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) PublishAssignmentCreated(ctx context.Context, msg usecase.AssignmentCreatedEvent) error {
	ctx, span := m.ins.Tracer("vault.outbound.mq").Start(ctx, "PublishAssignmentCreated")
	defer span.End()

	body, err := json.Marshal(event.AssignmentCreatedMessage{
		CredentialID: msg.CredentialID,
		GranteeIDs:   msg.GranteeIDs,
		AssignedBy:   msg.AssignedBy,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, event.AssignmentCreatedDestination, messaging.OutgoingMessage{
		Body:    body,
		Headers: []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
