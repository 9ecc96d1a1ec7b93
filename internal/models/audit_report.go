package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditReport is a persisted summary over a date range of the audit log.
//
// Summary is a JSON object with the keys "total_changes", "assignments",
// "revocations", "requests", "role_distribution" and "top_actors".
type AuditReport struct {
	BaseModel

	Title           string         `gorm:"not null" json:"title"`
	RequestedBy     string         `gorm:"type:uuid;not null" json:"requested_by"`
	StartDate       time.Time      `gorm:"not null" json:"start_date"`
	EndDate         time.Time      `gorm:"not null" json:"end_date"`
	InstitutionID   string         `gorm:"index" json:"institution_id,omitempty"`
	TotalEntries    int            `json:"total_entries"`
	SuspiciousCount int            `json:"suspicious_count"`
	Summary         datatypes.JSON `json:"summary"`
	GeneratedAt     time.Time      `gorm:"not null" json:"generated_at"`
}
