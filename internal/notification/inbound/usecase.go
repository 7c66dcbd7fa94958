package inbound

import (
	"context"

	"github.com/keyfold/keyfold/internal/notification/usecase"
)

type uc interface {
	ConsumeAssignmentCreated(ctx context.Context, in usecase.ConsumeAssignmentCreatedInput) error
}
