package entity

import (
	"time"

	"github.com/keyfold/keyfold/internal/pkg/valueobject"
)

type DeliveryStatus string

const (
	DeliveryStatusQueued DeliveryStatus = "queued"
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

// CreateDeliveryLog records an attempt to notify a grantee about a new
// assignment.
type CreateDeliveryLog struct {
	ID           int64
	CredentialID int64
	UserID       int64
	Channel      string
	Status       DeliveryStatus
}

// UpdateDeliveryLog finalizes a delivery attempt.
type UpdateDeliveryLog struct {
	ID               int64
	Status           DeliveryStatus
	ProviderResponse valueobject.JSONMap
	DeliveredAt      *time.Time
}

// Grantee is the directory info needed to address an assignment email.
type Grantee struct {
	ID       int64
	Email    string
	FullName string
}

// CredentialSummary is the non-secret credential info shown in the email.
// The secret never leaves the vault module.
type CredentialSummary struct {
	ID          int64
	WebsiteName string
	WebsiteURL  string
}
