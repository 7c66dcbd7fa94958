package secrets

// Purpose identifies what a ciphertext protects.
type Purpose string

const (
	// PurposeCredentialSecret scopes encryption to stored credential secrets.
	PurposeCredentialSecret Purpose = "credential_secret"
	// PurposeCredentialNote scopes encryption to stored credential notes.
	PurposeCredentialNote Purpose = "credential_note"
)

// Scope binds encryption to a specific credential and purpose.
// This is used as AAD (Additional Authenticated Data) in AES-GCM, so a
// ciphertext copied onto another credential row fails to decrypt.
type Scope struct {
	// CredentialID is the owning credential identifier.
	CredentialID int64
	// Purpose is the encryption purpose.
	Purpose Purpose
}
