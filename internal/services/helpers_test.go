package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/database/testutil"
	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/internal/permissions"
)

// midweekMorning is a Wednesday well inside business hours, so the unusual
// pattern heuristic stays quiet unless a test moves the clock on purpose.
var midweekMorning = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	requested []RoleChangeNotification
	changed   []RoleChangeNotification
	approved  []RoleChangeNotification
	denied    []RoleChangeNotification
}

func (n *recordingNotifier) RoleChangeRequested(_ context.Context, msg RoleChangeNotification) {
	n.requested = append(n.requested, msg)
}

func (n *recordingNotifier) RoleChanged(_ context.Context, msg RoleChangeNotification) {
	n.changed = append(n.changed, msg)
}

func (n *recordingNotifier) RoleChangeApproved(_ context.Context, msg RoleChangeNotification) {
	n.approved = append(n.approved, msg)
}

func (n *recordingNotifier) RoleChangeDenied(_ context.Context, msg RoleChangeNotification) {
	n.denied = append(n.denied, msg)
}

func newAuditService(t *testing.T, db *gorm.DB) *RoleAuditService {
	t.Helper()
	svc, err := NewRoleAuditService(db, AuditConfig{})
	require.NoError(t, err)
	svc.now = func() time.Time { return midweekMorning }
	return svc
}

func newChangeService(t *testing.T, db *gorm.DB, notifier Notifier) (*RoleChangeService, *permissions.Checker) {
	t.Helper()
	checker, err := permissions.NewChecker(db, nil, permissions.Config{CacheEnabled: true})
	require.NoError(t, err)
	svc, err := NewRoleChangeService(db, checker, newAuditService(t, db), notifier, RoleChangeConfig{})
	require.NoError(t, err)
	svc.now = func() time.Time { return midweekMorning }
	return svc, checker
}

func seedAssignment(t *testing.T, db *gorm.DB, userID string, role models.Role, institutionID, departmentID string) *models.UserRoleAssignment {
	t.Helper()
	assignment := &models.UserRoleAssignment{
		UserID:        userID,
		Role:          role,
		Status:        models.AssignmentActive,
		InstitutionID: institutionID,
		DepartmentID:  departmentID,
		AssignedBy:    "seed",
		AssignedAt:    midweekMorning,
	}
	require.NoError(t, db.Create(assignment).Error)
	return assignment
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t)
}
