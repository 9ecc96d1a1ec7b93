package models

import "time"

// RequestStatus tracks the lifecycle of a pending role request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
	RequestExpired  RequestStatus = "expired"
)

// RoleRequest is a pending ask to transition a user to a target role. It is
// created by the role change processor when a transition requires approval and
// terminates into exactly one of approved/denied/expired.
type RoleRequest struct {
	BaseModel

	UserID             string        `gorm:"type:uuid;index;not null" json:"user_id"`
	CurrentRole        Role          `gorm:"not null" json:"current_role"`
	RequestedRole      Role          `gorm:"index;not null" json:"requested_role"`
	Reason             string        `gorm:"not null" json:"reason"`
	VerificationMethod string        `json:"verification_method,omitempty"`
	Status             RequestStatus `gorm:"index;not null;default:pending" json:"status"`
	RequestedBy        string        `gorm:"type:uuid" json:"requested_by"`
	InstitutionID      string        `gorm:"index" json:"institution_id"`
	DepartmentID       string        `json:"department_id"`
	ExpiresAt          time.Time     `gorm:"index" json:"expires_at"`
	ReviewedBy         string        `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewNotes        string        `json:"review_notes,omitempty"`
	ReviewedAt         *time.Time    `json:"reviewed_at,omitempty"`
}
