package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditAction enumerates the role-affecting action kinds that get audited.
type AuditAction string

const (
	AuditRoleAssigned  AuditAction = "assigned"
	AuditRoleChanged   AuditAction = "changed"
	AuditRoleRevoked   AuditAction = "revoked"
	AuditRoleRequested AuditAction = "requested"
	AuditRoleApproved  AuditAction = "approved"
	AuditRoleDenied    AuditAction = "denied"
	AuditRoleExpired   AuditAction = "expired"
)

// RoleAuditEntry is the append-only record of a role-affecting action.
// Entries are never mutated after creation.
//
// Metadata carries a small JSON bag; the recognised keys are "request_id",
// "approval_notes", "verification_method" and "bypass_approval".
type RoleAuditEntry struct {
	BaseModel

	UserID        string         `gorm:"type:uuid;index;not null" json:"user_id"`
	ChangedBy     string         `gorm:"index;not null" json:"changed_by"`
	Action        AuditAction    `gorm:"index;not null" json:"action"`
	OldRole       Role           `json:"old_role,omitempty"`
	NewRole       Role           `gorm:"index" json:"new_role,omitempty"`
	Reason        string         `json:"reason"`
	InstitutionID string         `gorm:"index" json:"institution_id"`
	DepartmentID  string         `gorm:"index" json:"department_id"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	OccurredAt    time.Time      `gorm:"index;not null" json:"occurred_at"`
}
