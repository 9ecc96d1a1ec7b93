package permissions

import (
	"strings"

	"github.com/campushq/rolegate/internal/models"
)

// ResourceContext carries the resource dimensions a scope check evaluates
// against. A nil or empty context imposes no restriction.
type ResourceContext struct {
	OwnerID       string `json:"owner_id,omitempty"`
	ResourceID    string `json:"resource_id,omitempty"`
	ResourceType  string `json:"resource_type,omitempty"`
	DepartmentID  string `json:"department_id,omitempty"`
	InstitutionID string `json:"institution_id,omitempty"`
}

func (rc *ResourceContext) isEmpty() bool {
	return rc == nil || (rc.OwnerID == "" && rc.ResourceID == "" && rc.ResourceType == "" &&
		rc.DepartmentID == "" && rc.InstitutionID == "")
}

// scopeSatisfied reports whether the assignment satisfies the permission's
// declared scope for the given request context. Dimensions absent from the
// context impose no restriction.
func scopeSatisfied(scope Scope, assignment *models.UserRoleAssignment, userID string, rc *ResourceContext) bool {
	// A system administrator is unconstrained by unit boundaries.
	if assignment.Role == models.RoleSystemAdmin {
		return true
	}

	switch scope {
	case ScopeSelf:
		if rc == nil || rc.OwnerID == "" {
			return true
		}
		return rc.OwnerID == userID
	case ScopeDepartment:
		if rc == nil || rc.DepartmentID == "" {
			return true
		}
		if assignment.DepartmentID == rc.DepartmentID {
			return true
		}
		// Institution-wide assignments cover every department of that institution.
		return assignment.DepartmentID == "" &&
			(rc.InstitutionID == "" || assignment.InstitutionID == rc.InstitutionID)
	case ScopeInstitution:
		if rc == nil || rc.InstitutionID == "" {
			return true
		}
		return assignment.InstitutionID == rc.InstitutionID
	case ScopeSystem:
		return assignment.Role == models.RoleSystemAdmin
	default:
		return true
	}
}

// adminSatisfies reports whether the assignment makes its holder an admin at
// or above the requested scope level. An empty scopeID matches any unit.
func adminSatisfies(assignment *models.UserRoleAssignment, scope Scope, scopeID string) bool {
	if assignment.Role == models.RoleSystemAdmin {
		return true
	}

	switch scope {
	case ScopeSystem:
		return false
	case ScopeInstitution:
		return assignment.Role == models.RoleInstitutionAdmin &&
			(scopeID == "" || assignment.InstitutionID == scopeID)
	case ScopeDepartment:
		switch assignment.Role {
		case models.RoleInstitutionAdmin:
			// An institution admin covers every department of its institution.
			return scopeID == "" || assignment.DepartmentID == scopeID || assignment.DepartmentID == ""
		case models.RoleDepartmentAdmin:
			return scopeID == "" || assignment.DepartmentID == scopeID
		}
	}
	return false
}

const (
	cacheKeyPrefix    = "perm"
	cacheKeyDelimiter = "|"
	cacheKeyGlobal    = "global"
)

// cacheKeyEscaper keeps the delimiter out of escaped components. Context
// fields come from caller JSON, so an embedded delimiter must not let two
// different contexts produce the same key.
var cacheKeyEscaper = strings.NewReplacer(`\`, `\\`, cacheKeyDelimiter, `\`+cacheKeyDelimiter)

// cacheKey produces a deterministic key for (user, permission, context). All
// context dimensions that influence the scope check are encoded so that two
// checks with different context never collide; an absent context collapses to
// the literal "global" marker.
func cacheKey(userID, permissionID string, rc *ResourceContext) string {
	parts := []string{cacheKeyPrefix, cacheKeyEscaper.Replace(userID), cacheKeyEscaper.Replace(permissionID)}
	if rc.isEmpty() {
		parts = append(parts, cacheKeyGlobal)
	} else {
		for _, dim := range []string{rc.OwnerID, rc.ResourceID, rc.ResourceType, rc.DepartmentID, rc.InstitutionID} {
			parts = append(parts, cacheKeyEscaper.Replace(dim))
		}
	}
	return strings.Join(parts, cacheKeyDelimiter)
}

// userCachePrefix is the key prefix shared by every cache entry for a user.
// The user id is escaped the same way cacheKey escapes it, so the prefix of
// one user never matches another user's keys.
func userCachePrefix(userID string) string {
	return cacheKeyPrefix + cacheKeyDelimiter + cacheKeyEscaper.Replace(userID) + cacheKeyDelimiter
}
