package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushq/rolegate/internal/models"
	apperrors "github.com/campushq/rolegate/pkg/errors"
)

func TestValidateRejectsIncompleteInput(t *testing.T) {
	svc, _ := newChangeService(t, openTestDB(t), &recordingNotifier{})

	result, err := svc.Validate(context.Background(), RoleChangeInput{})
	require.NoError(t, err)
	require.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
}

func TestValidateRejectsUnknownRoles(t *testing.T) {
	svc, _ := newChangeService(t, openTestDB(t), &recordingNotifier{})

	result, err := svc.Validate(context.Background(), RoleChangeInput{
		UserID:      "u-1",
		CurrentRole: "wizard",
		NewRole:     models.RoleTeacher,
		Reason:      "promotion",
	})
	require.NoError(t, err)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors[0], "wizard")
}

func TestValidateRejectsSameRole(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newChangeService(t, db, &recordingNotifier{})
	seedAssignment(t, db, "u-same", models.RoleTeacher, "inst-1", "dept-1")

	result, err := svc.Validate(context.Background(), RoleChangeInput{
		UserID:      "u-same",
		CurrentRole: models.RoleTeacher,
		NewRole:     models.RoleTeacher,
		Reason:      "noop",
	})
	require.NoError(t, err)
	require.False(t, result.IsValid)
}

func TestValidateRequiresCurrentRoleHeld(t *testing.T) {
	svc, _ := newChangeService(t, openTestDB(t), &recordingNotifier{})

	result, err := svc.Validate(context.Background(), RoleChangeInput{
		UserID:      "u-nobody",
		CurrentRole: models.RoleTeacher,
		NewRole:     models.RoleStudent,
		Reason:      "cleanup",
	})
	require.NoError(t, err)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors[0], "does not currently hold")
}

func TestValidateActorAuthorization(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newChangeService(t, db, &recordingNotifier{})
	seedAssignment(t, db, "u-target", models.RoleStudent, "inst-1", "dept-1")

	in := RoleChangeInput{
		UserID:        "u-target",
		RequestedBy:   "u-outsider",
		CurrentRole:   models.RoleStudent,
		NewRole:       models.RoleTeacher,
		Reason:        "new hire",
		InstitutionID: "inst-1",
	}

	result, err := svc.Validate(context.Background(), in)
	require.NoError(t, err)
	require.False(t, result.IsValid)

	seedAssignment(t, db, "u-outsider", models.RoleInstitutionAdmin, "inst-1", "")

	result, err = svc.Validate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.IsValid)
	require.True(t, result.RequiresApproval)
	require.True(t, result.RequiresVerification)
}

func TestValidateWarnsOnPendingRequest(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newChangeService(t, db, &recordingNotifier{})
	seedAssignment(t, db, "u-warn", models.RoleStudent, "inst-1", "dept-1")
	require.NoError(t, db.Create(&models.RoleRequest{
		UserID:        "u-warn",
		CurrentRole:   models.RoleStudent,
		RequestedRole: models.RoleTeacher,
		Reason:        "earlier ask",
		Status:        models.RequestPending,
		ExpiresAt:     midweekMorning.Add(24 * time.Hour),
	}).Error)

	result, err := svc.Validate(context.Background(), RoleChangeInput{
		UserID:      "u-warn",
		CurrentRole: models.RoleStudent,
		NewRole:     models.RoleTeacher,
		Reason:      "asking again",
	})
	require.NoError(t, err)
	require.True(t, result.IsValid)
	require.NotEmpty(t, result.Warnings)
}

func TestTransitionPolicy(t *testing.T) {
	svc, _ := newChangeService(t, openTestDB(t), &recordingNotifier{})

	cases := []struct {
		name                 string
		from, to             models.Role
		approval, verication bool
	}{
		{"student to teacher", models.RoleStudent, models.RoleTeacher, true, true},
		{"teacher to department admin", models.RoleTeacher, models.RoleDepartmentAdmin, true, false},
		{"teacher to system admin", models.RoleTeacher, models.RoleSystemAdmin, true, false},
		{"teacher back to student", models.RoleTeacher, models.RoleStudent, false, false},
		{"admin down to teacher", models.RoleDepartmentAdmin, models.RoleTeacher, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			approval, verification := svc.transitionPolicy(tc.from, tc.to)
			require.Equal(t, tc.approval, approval)
			require.Equal(t, tc.verication, verification)
		})
	}
}

func TestTransitionPolicyAutoApproveList(t *testing.T) {
	db := openTestDB(t)
	_, checker := newChangeService(t, db, &recordingNotifier{})
	svc, err := NewRoleChangeService(db, checker, newAuditService(t, db), nil, RoleChangeConfig{
		AutoApproveRoles: []models.Role{models.RoleTeacher},
	})
	require.NoError(t, err)

	approval, verification := svc.transitionPolicy(models.RoleDepartmentAdmin, models.RoleTeacher)
	require.False(t, approval)
	require.False(t, verification)

	// Listing a role never weakens the upgrade rules.
	approval, _ = svc.transitionPolicy(models.RoleStudent, models.RoleTeacher)
	require.True(t, approval)
}

func TestProcessReportsValidationFailure(t *testing.T) {
	svc, _ := newChangeService(t, openTestDB(t), &recordingNotifier{})

	result, err := svc.Process(context.Background(), RoleChangeInput{UserID: "u-bad"}, ProcessOptions{})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, strings.HasPrefix(result.Error, "Validation failed: "))
	require.Nil(t, result.Assignment)
	require.Nil(t, result.Request)
}

func TestProcessUpgradeOpensRequest(t *testing.T) {
	db := openTestDB(t)
	notifier := &recordingNotifier{}
	svc, checker := newChangeService(t, db, notifier)
	seedAssignment(t, db, "u-up", models.RoleStudent, "inst-1", "dept-1")

	ctx := context.Background()
	result, err := svc.Process(ctx, RoleChangeInput{
		UserID:        "u-up",
		RequestedBy:   "u-up",
		CurrentRole:   models.RoleStudent,
		NewRole:       models.RoleTeacher,
		Reason:        "completed certification",
		InstitutionID: "inst-1",
		DepartmentID:  "dept-1",
	}, ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Nil(t, result.Assignment)
	require.NotNil(t, result.Request)
	require.Equal(t, models.RequestPending, result.Request.Status)
	require.Equal(t, midweekMorning.Add(7*24*time.Hour), result.Request.ExpiresAt)

	// Nothing changed until someone approves.
	granted, err := checker.HasPermission(ctx, "u-up", "class.create", nil)
	require.NoError(t, err)
	require.False(t, granted)

	audit, err := svc.audit.Query(ctx, AuditQueryFilters{UserID: "u-up", Action: models.AuditRoleRequested})
	require.NoError(t, err)
	require.Equal(t, int64(1), audit.TotalCount)

	require.Len(t, notifier.requested, 1)
	require.Equal(t, result.Request.ID, notifier.requested[0].RequestID)
}

func TestProcessDowngradeExecutesAndDropsCachedGrants(t *testing.T) {
	db := openTestDB(t)
	notifier := &recordingNotifier{}
	svc, checker := newChangeService(t, db, notifier)
	previous := seedAssignment(t, db, "u-down", models.RoleTeacher, "inst-1", "dept-1")

	ctx := context.Background()
	granted, err := checker.HasPermission(ctx, "u-down", "class.manage", nil)
	require.NoError(t, err)
	require.True(t, granted)

	result, err := svc.Process(ctx, RoleChangeInput{
		UserID:        "u-down",
		RequestedBy:   "u-down",
		CurrentRole:   models.RoleTeacher,
		NewRole:       models.RoleStudent,
		Reason:        "stepping back to studies",
		InstitutionID: "inst-1",
		DepartmentID:  "dept-1",
	}, ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Assignment)
	require.Equal(t, models.RoleStudent, result.Assignment.Role)

	var revoked models.UserRoleAssignment
	require.NoError(t, db.First(&revoked, "id = ?", previous.ID).Error)
	require.Equal(t, models.AssignmentRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)
	require.True(t, strings.HasPrefix(revoked.RevokeReason, "Role change: "))
	require.Contains(t, revoked.RevokeReason, "stepping back")

	// The cached teacher grant must not survive the downgrade.
	granted, err = checker.HasPermission(ctx, "u-down", "class.manage", nil)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = checker.HasPermission(ctx, "u-down", "class.view", nil)
	require.NoError(t, err)
	require.True(t, granted)

	audit, err := svc.audit.Query(ctx, AuditQueryFilters{UserID: "u-down", Action: models.AuditRoleChanged})
	require.NoError(t, err)
	require.Equal(t, int64(1), audit.TotalCount)

	require.Len(t, notifier.changed, 1)
}

func TestProcessBypassApprovalIsAudited(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newChangeService(t, db, &recordingNotifier{})
	seedAssignment(t, db, "u-bypass", models.RoleStudent, "inst-1", "dept-1")
	seedAssignment(t, db, "sysadmin-1", models.RoleSystemAdmin, "", "")

	ctx := context.Background()
	result, err := svc.Process(ctx, RoleChangeInput{
		UserID:        "u-bypass",
		RequestedBy:   "sysadmin-1",
		CurrentRole:   models.RoleStudent,
		NewRole:       models.RoleTeacher,
		Reason:        "emergency staffing",
		InstitutionID: "inst-1",
		DepartmentID:  "dept-1",
	}, ProcessOptions{BypassApproval: true})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Assignment)

	audit, err := svc.audit.Query(ctx, AuditQueryFilters{UserID: "u-bypass", Action: models.AuditRoleChanged})
	require.NoError(t, err)
	require.Equal(t, int64(1), audit.TotalCount)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(audit.Entries[0].Metadata, &meta))
	require.Equal(t, true, meta["bypass_approval"])
}

func TestApproveExecutesRequest(t *testing.T) {
	db := openTestDB(t)
	notifier := &recordingNotifier{}
	svc, checker := newChangeService(t, db, notifier)
	seedAssignment(t, db, "u-appr", models.RoleStudent, "inst-A", "dept-1")
	seedAssignment(t, db, "approver-1", models.RoleInstitutionAdmin, "inst-A", "")

	ctx := context.Background()
	result, err := svc.Process(ctx, RoleChangeInput{
		UserID:        "u-appr",
		RequestedBy:   "u-appr",
		CurrentRole:   models.RoleStudent,
		NewRole:       models.RoleTeacher,
		Reason:        "faculty onboarding",
		InstitutionID: "inst-A",
		DepartmentID:  "dept-1",
	}, ProcessOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Request)

	assignment, err := svc.Approve(ctx, result.Request.ID, "approver-1", "credentials verified")
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, assignment.Role)

	request, err := svc.GetRequest(ctx, result.Request.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, request.Status)
	require.Equal(t, "approver-1", request.ReviewedBy)

	granted, err := checker.HasPermission(ctx, "u-appr", "class.create", nil)
	require.NoError(t, err)
	require.True(t, granted)

	audit, err := svc.audit.Query(ctx, AuditQueryFilters{UserID: "u-appr", Action: models.AuditRoleApproved})
	require.NoError(t, err)
	require.Equal(t, int64(1), audit.TotalCount)

	require.Len(t, notifier.approved, 1)

	// The request is spent; a second approval must fail.
	_, err = svc.Approve(ctx, result.Request.ID, "approver-1", "again")
	require.ErrorIs(t, err, ErrRequestNotPending)
}

func TestApproveRequiresPermission(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newChangeService(t, db, &recordingNotifier{})
	seedAssignment(t, db, "u-guard", models.RoleStudent, "inst-A", "dept-1")

	ctx := context.Background()
	result, err := svc.Process(ctx, RoleChangeInput{
		UserID:        "u-guard",
		RequestedBy:   "u-guard",
		CurrentRole:   models.RoleStudent,
		NewRole:       models.RoleTeacher,
		Reason:        "promotion",
		InstitutionID: "inst-A",
	}, ProcessOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Request)

	_, err = svc.Approve(ctx, result.Request.ID, "random-user", "sure")
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.Approve(ctx, result.Request.ID, "", "")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Approve(ctx, "missing-request", "random-user", "")
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestDenyResolvesWithoutExecuting(t *testing.T) {
	db := openTestDB(t)
	notifier := &recordingNotifier{}
	svc, checker := newChangeService(t, db, notifier)
	seedAssignment(t, db, "u-deny", models.RoleStudent, "inst-A", "dept-1")
	seedAssignment(t, db, "approver-2", models.RoleInstitutionAdmin, "inst-A", "")

	ctx := context.Background()
	result, err := svc.Process(ctx, RoleChangeInput{
		UserID:        "u-deny",
		RequestedBy:   "u-deny",
		CurrentRole:   models.RoleStudent,
		NewRole:       models.RoleTeacher,
		Reason:        "wants to teach",
		InstitutionID: "inst-A",
	}, ProcessOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Request)

	require.NoError(t, svc.Deny(ctx, result.Request.ID, "approver-2", "insufficient credentials"))

	request, err := svc.GetRequest(ctx, result.Request.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestDenied, request.Status)

	granted, err := checker.HasPermission(ctx, "u-deny", "class.create", nil)
	require.NoError(t, err)
	require.False(t, granted)

	audit, err := svc.audit.Query(ctx, AuditQueryFilters{UserID: "u-deny", Action: models.AuditRoleDenied})
	require.NoError(t, err)
	require.Equal(t, int64(1), audit.TotalCount)

	require.Len(t, notifier.denied, 1)
}

func TestApproveExpiredRequest(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newChangeService(t, db, &recordingNotifier{})
	seedAssignment(t, db, "approver-3", models.RoleInstitutionAdmin, "inst-A", "")

	request := &models.RoleRequest{
		UserID:        "u-late",
		CurrentRole:   models.RoleStudent,
		RequestedRole: models.RoleTeacher,
		Reason:        "stale ask",
		Status:        models.RequestPending,
		InstitutionID: "inst-A",
		ExpiresAt:     midweekMorning.Add(-time.Hour),
	}
	require.NoError(t, db.Create(request).Error)

	_, err := svc.Approve(context.Background(), request.ID, "approver-3", "too late")
	require.ErrorIs(t, err, ErrRequestExpired)

	reloaded, err := svc.GetRequest(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestExpired, reloaded.Status)
}

func TestPreviewPermissionDelta(t *testing.T) {
	svc, _ := newChangeService(t, openTestDB(t), &recordingNotifier{})

	preview, err := svc.Preview(models.RoleStudent, models.RoleTeacher)
	require.NoError(t, err)
	require.True(t, preview.IsUpgrade)
	require.Contains(t, preview.AddedPermissions, "class.create")
	require.Contains(t, preview.AddedPermissions, "grade.update")
	require.Empty(t, preview.RemovedPermissions)
	require.Subset(t, preview.NewPermissions, preview.CurrentPermissions)
	require.ElementsMatch(t, preview.AddedPermissions, difference(preview.NewPermissions, preview.CurrentPermissions))

	// No permission may land on both sides of the delta.
	for _, id := range preview.AddedPermissions {
		require.NotContains(t, preview.RemovedPermissions, id)
	}

	reverse, err := svc.Preview(models.RoleTeacher, models.RoleStudent)
	require.NoError(t, err)
	require.False(t, reverse.IsUpgrade)
	require.Contains(t, reverse.RemovedPermissions, "class.create")
	require.Empty(t, reverse.AddedPermissions)

	_, err = svc.Preview("wizard", models.RoleTeacher)
	require.Error(t, err)
}

func TestExpireAssignments(t *testing.T) {
	db := openTestDB(t)
	svc, checker := newChangeService(t, db, &recordingNotifier{})

	expiry := midweekMorning.Add(-time.Hour)
	stale := &models.UserRoleAssignment{
		UserID:        "u-exp",
		Role:          models.RoleTeacher,
		Status:        models.AssignmentActive,
		InstitutionID: "inst-1",
		AssignedBy:    "seed",
		AssignedAt:    midweekMorning.Add(-48 * time.Hour),
		IsTemporary:   true,
		ExpiresAt:     &expiry,
	}
	require.NoError(t, db.Create(stale).Error)
	seedAssignment(t, db, "u-keep", models.RoleTeacher, "inst-1", "dept-1")

	count, err := svc.ExpireAssignments(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	var reloaded models.UserRoleAssignment
	require.NoError(t, db.First(&reloaded, "id = ?", stale.ID).Error)
	require.Equal(t, models.AssignmentExpired, reloaded.Status)

	granted, err := checker.HasPermission(context.Background(), "u-exp", "class.create", nil)
	require.NoError(t, err)
	require.False(t, granted)

	audit, err := svc.audit.Query(context.Background(), AuditQueryFilters{UserID: "u-exp", Action: models.AuditRoleExpired})
	require.NoError(t, err)
	require.Equal(t, int64(1), audit.TotalCount)
}

func TestExpirePendingRequests(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newChangeService(t, db, &recordingNotifier{})

	require.NoError(t, db.Create(&models.RoleRequest{
		UserID:        "u-req-exp",
		CurrentRole:   models.RoleStudent,
		RequestedRole: models.RoleTeacher,
		Reason:        "forgotten",
		Status:        models.RequestPending,
		ExpiresAt:     midweekMorning.Add(-time.Minute),
	}).Error)
	require.NoError(t, db.Create(&models.RoleRequest{
		UserID:        "u-req-live",
		CurrentRole:   models.RoleStudent,
		RequestedRole: models.RoleTeacher,
		Reason:        "fresh",
		Status:        models.RequestPending,
		ExpiresAt:     midweekMorning.Add(time.Hour),
	}).Error)

	count, err := svc.ExpirePendingRequests(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	pending, err := svc.PendingRequests(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "u-req-live", pending[0].UserID)
}
