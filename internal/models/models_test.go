package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoleOrdering(t *testing.T) {
	roles := Roles()
	for i := 1; i < len(roles); i++ {
		require.Greater(t, roles[i].Level(), roles[i-1].Level())
	}

	require.True(t, RoleSystemAdmin.IsAdministrative())
	require.True(t, RoleDepartmentAdmin.IsAdministrative())
	require.False(t, RoleTeacher.IsAdministrative())
	require.False(t, RoleStudent.IsAdministrative())

	require.True(t, RoleTeacher.IsUpgradeFrom(RoleStudent))
	require.False(t, RoleStudent.IsUpgradeFrom(RoleTeacher))
	require.Equal(t, 4, RoleSystemAdmin.LevelsAbove(RoleStudent))
	require.Equal(t, -1, RoleTeacher.LevelsAbove(RoleDepartmentAdmin))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  Teacher ")
	require.NoError(t, err)
	require.Equal(t, RoleTeacher, role)

	_, err = ParseRole("principal")
	require.Error(t, err)
}

func TestAssignmentValidateRequiresExpiryWhenTemporary(t *testing.T) {
	a := UserRoleAssignment{Role: RoleTeacher, IsTemporary: true}
	require.Error(t, a.Validate())

	expiry := time.Now().Add(24 * time.Hour)
	a.ExpiresAt = &expiry
	require.NoError(t, a.Validate())
}

func TestAssignmentUsableAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	active := UserRoleAssignment{Role: RoleTeacher, Status: AssignmentActive}
	require.True(t, active.UsableAt(now))

	suspended := UserRoleAssignment{Role: RoleTeacher, Status: AssignmentSuspended}
	require.False(t, suspended.UsableAt(now))

	// Past expiry is inactive even while the status column still says active.
	lapsed := UserRoleAssignment{Role: RoleTeacher, Status: AssignmentActive, ExpiresAt: &past}
	require.False(t, lapsed.UsableAt(now))

	notYet := UserRoleAssignment{Role: RoleTeacher, Status: AssignmentActive, StartsAt: &future}
	require.False(t, notYet.UsableAt(now))

	ended := UserRoleAssignment{Role: RoleTeacher, Status: AssignmentActive, EndsAt: &past}
	require.False(t, ended.UsableAt(now))

	windowed := UserRoleAssignment{Role: RoleTeacher, Status: AssignmentActive, StartsAt: &past, EndsAt: &future}
	require.True(t, windowed.UsableAt(now))
}
