package permissions

import "github.com/campushq/rolegate/internal/models"

// atLeast returns every role at or above the supplied privilege level.
func atLeast(min models.Role) []models.Role {
	var roles []models.Role
	for _, role := range models.Roles() {
		if role.Level() >= min.Level() {
			roles = append(roles, role)
		}
	}
	return roles
}

func init() {
	defs := []*Definition{
		{
			ID:          "class.view",
			Category:    CategoryContent,
			Scope:       ScopeDepartment,
			Description: "View classes and course material",
			Roles:       atLeast(models.RoleStudent),
		},
		{
			ID:          "class.create",
			Category:    CategoryContent,
			Scope:       ScopeDepartment,
			Description: "Create classes",
			Roles:       atLeast(models.RoleTeacher),
		},
		{
			ID:          "class.update",
			Category:    CategoryContent,
			Scope:       ScopeDepartment,
			Description: "Update class details and material",
			Roles:       atLeast(models.RoleTeacher),
		},
		{
			ID:          "class.delete",
			Category:    CategoryContent,
			Scope:       ScopeDepartment,
			Description: "Delete classes",
			Roles:       atLeast(models.RoleDepartmentAdmin),
		},
		{
			ID:          "class.manage",
			Category:    CategoryContent,
			Scope:       ScopeDepartment,
			Description: "Full class management including rosters",
			Roles:       atLeast(models.RoleTeacher),
		},
		{
			ID:          "grade.view",
			Category:    CategoryContent,
			Scope:       ScopeSelf,
			Description: "View own grades",
			Roles:       atLeast(models.RoleStudent),
		},
		{
			ID:          "grade.update",
			Category:    CategoryContent,
			Scope:       ScopeDepartment,
			Description: "Record and amend grades",
			Roles:       atLeast(models.RoleTeacher),
		},
		{
			ID:          "profile.view",
			Category:    CategoryUserManagement,
			Scope:       ScopeSelf,
			Description: "View own profile",
			Roles:       atLeast(models.RoleStudent),
		},
		{
			ID:          "profile.update",
			Category:    CategoryUserManagement,
			Scope:       ScopeSelf,
			Description: "Update own profile",
			Roles:       atLeast(models.RoleStudent),
		},
		{
			ID:          "user.view",
			Category:    CategoryUserManagement,
			Scope:       ScopeDepartment,
			Description: "View users within a department",
			Roles:       atLeast(models.RoleTeacher),
		},
		{
			ID:          "user.create",
			Category:    CategoryUserManagement,
			Scope:       ScopeInstitution,
			Description: "Create users",
			Roles:       atLeast(models.RoleInstitutionAdmin),
		},
		{
			ID:          "user.update",
			Category:    CategoryUserManagement,
			Scope:       ScopeInstitution,
			Description: "Update user accounts",
			Roles:       atLeast(models.RoleInstitutionAdmin),
		},
		{
			ID:          "user.suspend",
			Category:    CategoryUserManagement,
			Scope:       ScopeInstitution,
			Description: "Suspend user accounts",
			Roles:       atLeast(models.RoleInstitutionAdmin),
		},
		{
			ID:          "role.view",
			Category:    CategoryUserManagement,
			Scope:       ScopeDepartment,
			Description: "View role assignments",
			Roles:       atLeast(models.RoleDepartmentAdmin),
		},
		{
			ID:          "role.assign",
			Category:    CategoryUserManagement,
			Scope:       ScopeInstitution,
			Description: "Assign and change user roles",
			Roles:       atLeast(models.RoleInstitutionAdmin),
		},
		{
			ID:          "role.approve",
			Category:    CategoryUserManagement,
			Scope:       ScopeInstitution,
			Description: "Approve or deny role change requests",
			Roles:       atLeast(models.RoleInstitutionAdmin),
		},
		{
			ID:          "analytics.view",
			Category:    CategoryAnalytics,
			Scope:       ScopeDepartment,
			Description: "View department analytics",
			Roles:       atLeast(models.RoleTeacher),
		},
		{
			ID:          "analytics.export",
			Category:    CategoryAnalytics,
			Scope:       ScopeInstitution,
			Description: "Export analytics data",
			Roles:       atLeast(models.RoleInstitutionAdmin),
		},
		{
			ID:          "audit.view",
			Category:    CategoryAnalytics,
			Scope:       ScopeInstitution,
			Description: "View role audit logs",
			Roles:       atLeast(models.RoleInstitutionAdmin),
		},
		{
			ID:          "system.settings",
			Category:    CategorySystem,
			Scope:       ScopeSystem,
			Description: "Manage platform settings",
			Roles:       []models.Role{models.RoleSystemAdmin},
		},
		{
			ID:          "system.maintenance",
			Category:    CategorySystem,
			Scope:       ScopeSystem,
			Description: "Run platform maintenance tasks",
			Roles:       []models.Role{models.RoleSystemAdmin},
		},
		{
			ID:          "system.audit",
			Category:    CategorySystem,
			Scope:       ScopeSystem,
			Description: "Review suspicious activity and flag detections",
			Roles:       []models.Role{models.RoleSystemAdmin},
		},
	}

	for _, def := range defs {
		if err := Register(def); err != nil {
			panic(err)
		}
	}
}
