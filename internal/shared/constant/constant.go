// Package constant holds authorization object and action names shared by
// modules and the casbin policy seed.
package constant

const (
	// PermVaultAssignments guards assignment management for credentials.
	PermVaultAssignments = "vault:assignments"
	// PermVaultAudit guards the credential access audit trail.
	PermVaultAudit = "vault:audit"
)

const (
	PermActCreate = "create"
	PermActRead   = "read"
	PermActDelete = "delete"
	PermActExport = "export"
)
