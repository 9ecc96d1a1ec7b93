package models

import (
	"time"

	"gorm.io/datatypes"
)

// SuspiciousType classifies the heuristic that raised a detection.
type SuspiciousType string

const (
	SuspiciousRapidChanges        SuspiciousType = "rapid_role_changes"
	SuspiciousPrivilegeEscalation SuspiciousType = "privilege_escalation"
	SuspiciousUnusualPattern      SuspiciousType = "unusual_pattern"
)

// Severity grades a suspicious activity detection.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SuspiciousActivity is a derived, reviewable record raised by the audit
// heuristics. It is write-once except for the reviewer flag transition.
//
// AuditEntryIDs is a JSON array of the RoleAuditEntry ids that triggered the
// detection.
type SuspiciousActivity struct {
	BaseModel

	UserID        string         `gorm:"type:uuid;index;not null" json:"user_id"`
	Type          SuspiciousType `gorm:"index;not null" json:"type"`
	Severity      Severity       `gorm:"index;not null" json:"severity"`
	Description   string         `gorm:"not null" json:"description"`
	AuditEntryIDs datatypes.JSON `json:"audit_entry_ids"`
	DetectedAt    time.Time      `gorm:"index;not null" json:"detected_at"`
	Flagged       bool           `gorm:"index;default:false" json:"flagged"`
	ReviewedBy    string         `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewNotes   string         `json:"review_notes,omitempty"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
}
