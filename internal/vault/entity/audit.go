package entity

import (
	"time"

	"github.com/keyfold/keyfold/internal/pkg/valueobject"
)

// AuditAction identifies what happened to a credential.
type AuditAction string

const (
	AuditAssignmentCreated AuditAction = "assignment_created"
	AuditAssignmentRevoked AuditAction = "assignment_revoked"
	AuditOTPIssued         AuditAction = "otp_issued"
	AuditOTPConsumed       AuditAction = "otp_consumed"
	AuditSecretRevealed    AuditAction = "secret_revealed"
)

func (a AuditAction) String() string {
	return string(a)
}

// AuditEvent is one append-only entry in the credential access trail.
type AuditEvent struct {
	ID           int64
	CredentialID int64
	ActorID      int64
	Action       AuditAction
	Metadata     valueobject.JSONMap
	CreatedAt    time.Time
}
