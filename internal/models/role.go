package models

import (
	"fmt"
	"strings"
)

// Role enumerates the platform roles, totally ordered by privilege.
type Role string

const (
	RoleStudent          Role = "student"
	RoleTeacher          Role = "teacher"
	RoleDepartmentAdmin  Role = "department_admin"
	RoleInstitutionAdmin Role = "institution_admin"
	RoleSystemAdmin      Role = "system_admin"
)

var roleLevels = map[Role]int{
	RoleStudent:          1,
	RoleTeacher:          2,
	RoleDepartmentAdmin:  3,
	RoleInstitutionAdmin: 4,
	RoleSystemAdmin:      5,
}

// Roles returns all known roles in ascending privilege order.
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleDepartmentAdmin, RoleInstitutionAdmin, RoleSystemAdmin}
}

// ParseRole normalises user or config input into a known Role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// IsValid reports whether the role is part of the fixed enumeration.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the role's position in the privilege order; unknown roles are 0.
func (r Role) Level() int {
	return roleLevels[r]
}

// IsAdministrative reports whether the role is an administrative role.
func (r Role) IsAdministrative() bool {
	return r.Level() >= roleLevels[RoleDepartmentAdmin]
}

// IsUpgradeFrom reports whether moving from old to r crosses upward in the hierarchy.
func (r Role) IsUpgradeFrom(old Role) bool {
	return r.Level() > old.Level()
}

// LevelsAbove returns how many hierarchy levels r sits above old; zero or
// negative means the move is lateral or downward.
func (r Role) LevelsAbove(old Role) int {
	return r.Level() - old.Level()
}

func (r Role) String() string {
	return string(r)
}
