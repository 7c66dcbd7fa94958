package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/keyfold/keyfold/internal/notification/usecase"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/messaging"
	"github.com/keyfold/keyfold/internal/pkg/uid"
	"github.com/keyfold/keyfold/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, headers []messaging.Header) context.Context {
	for i := range headers {
		if headers[i].Key == keyOfCorrelationID {
			return instrument.SetCorrelationID(ctx, string(headers[i].Value))
		}
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func (h *MQHandler) AssignmentCreatedNotification(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "AssignmentCreatedNotification")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: assignment created notification", "msg_body", string(body))

	var payload event.AssignmentCreatedMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of assignment created notification", "msg_body", string(body), "error", err)
		return nil
	}

	if err := h.uc.ConsumeAssignmentCreated(ctx, usecase.ConsumeAssignmentCreatedInput{
		CredentialID: payload.CredentialID,
		GranteeIDs:   payload.GranteeIDs,
		AssignedBy:   payload.AssignedBy,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume assignment created", "msg_body", string(body), "error", err)
		return err
	}

	return nil
}
