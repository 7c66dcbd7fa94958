package entity

import "time"

// OTPRequest is one issued passcode. The code itself is stored as an
// HMAC-SHA256 hash; the plaintext exists only in the issuance response.
//
// Used flips false to true exactly once and never reverts. A request is
// valid iff it is unused and unexpired; expired requests are rejected
// without being marked used.
type OTPRequest struct {
	ID           int64
	CredentialID int64
	RequestedBy  int64
	CodeHash     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Used         bool
}

// ValidAt reports whether the request could still be consumed at now.
func (r OTPRequest) ValidAt(now time.Time) bool {
	return !r.Used && now.Before(r.ExpiresAt)
}

// RevealGrant is the short-lived, single-use authorization produced by a
// successful passcode consumption. The token is stored hashed and the row is
// deleted when the grant is spent.
type RevealGrant struct {
	ID           int64
	CredentialID int64
	UserID       int64
	TokenHash    string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
