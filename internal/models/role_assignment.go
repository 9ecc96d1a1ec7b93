package models

import (
	"errors"
	"time"
)

// AssignmentStatus tracks the lifecycle of a role assignment.
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentSuspended AssignmentStatus = "suspended"
	AssignmentExpired   AssignmentStatus = "expired"
	AssignmentRevoked   AssignmentStatus = "revoked"
)

// UserRoleAssignment grants a role to a user within an institution/department
// scope. A user may hold several simultaneous assignments across scopes.
type UserRoleAssignment struct {
	BaseModel

	UserID        string           `gorm:"type:uuid;index;not null" json:"user_id"`
	Role          Role             `gorm:"index;not null" json:"role"`
	Status        AssignmentStatus `gorm:"index;not null;default:active" json:"status"`
	InstitutionID string           `gorm:"index" json:"institution_id"`
	DepartmentID  string           `gorm:"index" json:"department_id"`
	AssignedBy    string           `gorm:"type:uuid" json:"assigned_by"`
	AssignedAt    time.Time        `json:"assigned_at"`
	IsTemporary   bool             `gorm:"default:false" json:"is_temporary"`
	ExpiresAt     *time.Time       `gorm:"index" json:"expires_at,omitempty"`
	StartsAt      *time.Time       `json:"starts_at,omitempty"`
	EndsAt        *time.Time       `json:"ends_at,omitempty"`
	RevokedAt     *time.Time       `json:"revoked_at,omitempty"`
	RevokeReason  string           `json:"revoke_reason,omitempty"`
}

var errTemporaryNeedsExpiry = errors.New("temporary assignment requires an expiration timestamp")

// Validate enforces assignment invariants prior to persistence.
func (a *UserRoleAssignment) Validate() error {
	if a.IsTemporary && a.ExpiresAt == nil {
		return errTemporaryNeedsExpiry
	}
	if !a.Role.IsValid() {
		return errors.New("assignment role is not a known role")
	}
	return nil
}

// UsableAt reports whether the assignment confers its role at the given
// instant. An expired assignment is logically inactive even when its status
// column has not been transitioned yet.
func (a *UserRoleAssignment) UsableAt(now time.Time) bool {
	if a.Status != AssignmentActive {
		return false
	}
	if a.StartsAt != nil && now.Before(*a.StartsAt) {
		return false
	}
	if a.EndsAt != nil && now.After(*a.EndsAt) {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return false
	}
	return true
}
