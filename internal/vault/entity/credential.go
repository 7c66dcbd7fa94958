package entity

import "time"

// Credential is a stored website login manageable by its owner. The secret
// payload is AES-GCM ciphertext; it is only decrypted on an authorized
// reveal, never for listings.
type Credential struct {
	ID          int64
	WebsiteName string
	WebsiteURL  string
	Username    string
	Secret      []byte // encrypted at rest
	Notes       string
	OTPRequired bool
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment grants one user view access to one credential. At most one
// active assignment exists per (credential, user) pair; deleting the row
// revokes access.
type Assignment struct {
	ID               int64
	CredentialID     int64
	UserID           int64
	AssignedBy       int64
	AssignedAt       time.Time
	NotificationSent bool
}

// NewAssignment carries the fields needed to persist an assignment.
type NewAssignment struct {
	ID           int64
	CredentialID int64
	UserID       int64
	AssignedBy   int64
}

// AssignmentInfo is an assignment joined with grantee directory info, used
// by the admin listing.
type AssignmentInfo struct {
	Assignment
	UserEmail    string
	UserFullName string
}
