package models

// User is the subject directory row for principals known to the engine.
// Authentication happens upstream; the engine only needs a stable identifier
// and the scoping attributes used in audit reporting.
type User struct {
	BaseModel

	Username      string `gorm:"uniqueIndex;not null" json:"username"`
	Email         string `gorm:"uniqueIndex" json:"email"`
	DisplayName   string `json:"display_name"`
	InstitutionID string `gorm:"index" json:"institution_id"`
	DepartmentID  string `gorm:"index" json:"department_id"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`

	Assignments []UserRoleAssignment `gorm:"foreignKey:UserID" json:"assignments,omitempty"`
}
