package event

const AssignmentCreatedDestination string = "vault_assignment_created"
const AssignmentCreatedConsumerNotification string = "vault_assignment_created_notification"

type AssignmentCreatedMessage struct {
	CredentialID int64   `json:"credential_id"`
	GranteeIDs   []int64 `json:"grantee_ids"`
	AssignedBy   int64   `json:"assigned_by"`
}
