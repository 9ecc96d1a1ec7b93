package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/app"
	"github.com/campushq/rolegate/internal/database/testutil"
	"github.com/campushq/rolegate/internal/middleware"
	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/internal/permissions"
	"github.com/campushq/rolegate/internal/services"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	checker, err := permissions.NewChecker(db, nil, permissions.Config{CacheEnabled: true})
	require.NoError(t, err)
	audit, err := services.NewRoleAuditService(db, services.AuditConfig{})
	require.NoError(t, err)
	roles, err := services.NewRoleChangeService(db, checker, audit, nil, services.RoleChangeConfig{})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true
	cfg.Monitoring.Prometheus.Enabled = true

	r, err := NewRouter(cfg, Deps{DB: db, Checker: checker, Roles: roles, Audit: audit})
	require.NoError(t, err)
	return r, db
}

func seedAssignment(t *testing.T, db *gorm.DB, userID string, role models.Role, institutionID, departmentID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserRoleAssignment{
		UserID:        userID,
		Role:          role,
		Status:        models.AssignmentActive,
		InstitutionID: institutionID,
		DepartmentID:  departmentID,
		AssignedBy:    "seed",
		AssignedAt:    time.Now().UTC(),
	}).Error)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestRouterPublicEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterRequiresIdentity(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/permissions/my", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissionCheckEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	seedAssignment(t, db, "u-http-1", models.RoleStudent, "inst-1", "dept-1")

	w := doJSON(t, r, http.MethodPost, "/api/permissions/check", "u-http-1", gin.H{"permission": "class.view"})
	require.Equal(t, http.StatusOK, w.Code)
	var check struct {
		Granted bool `json:"granted"`
	}
	decodeData(t, w, &check)
	require.True(t, check.Granted)

	w = doJSON(t, r, http.MethodPost, "/api/permissions/check", "u-http-1", gin.H{"permission": "class.delete"})
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &check)
	require.False(t, check.Granted)

	// Missing permission field fails validation.
	w = doJSON(t, r, http.MethodPost, "/api/permissions/check", "u-http-1", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoleChangeWorkflowOverHTTP(t *testing.T) {
	r, db := newTestRouter(t)
	seedAssignment(t, db, "u-http-2", models.RoleStudent, "inst-1", "dept-1")
	seedAssignment(t, db, "admin-http", models.RoleInstitutionAdmin, "inst-1", "")

	w := doJSON(t, r, http.MethodPost, "/api/roles/changes", "u-http-2", gin.H{
		"user_id":        "u-http-2",
		"current_role":   "student",
		"new_role":       "teacher",
		"reason":         "finished teaching assistant program",
		"institution_id": "inst-1",
		"department_id":  "dept-1",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var result struct {
		Request *models.RoleRequest `json:"request"`
	}
	decodeData(t, w, &result)
	require.NotNil(t, result.Request)
	require.Equal(t, models.RequestPending, result.Request.Status)

	// A student may not list requests.
	w = doJSON(t, r, http.MethodGet, "/api/roles/requests", "u-http-2", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/roles/requests", "admin-http", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/roles/requests/"+result.Request.ID+"/approve", "admin-http", gin.H{"notes": "verified"})
	require.Equal(t, http.StatusOK, w.Code)

	var assignment models.UserRoleAssignment
	decodeData(t, w, &assignment)
	require.Equal(t, models.RoleTeacher, assignment.Role)

	// The new role is effective immediately.
	w = doJSON(t, r, http.MethodPost, "/api/permissions/check", "u-http-2", gin.H{"permission": "class.create"})
	require.Equal(t, http.StatusOK, w.Code)
	var check struct {
		Granted bool `json:"granted"`
	}
	decodeData(t, w, &check)
	require.True(t, check.Granted)
}

func TestBypassApprovalRequiresSystemAdmin(t *testing.T) {
	r, db := newTestRouter(t)
	seedAssignment(t, db, "u-http-3", models.RoleStudent, "inst-1", "dept-1")
	seedAssignment(t, db, "sys-http", models.RoleSystemAdmin, "", "")

	body := gin.H{
		"user_id":         "u-http-3",
		"current_role":    "student",
		"new_role":        "teacher",
		"reason":          "emergency staffing",
		"institution_id":  "inst-1",
		"department_id":   "dept-1",
		"bypass_approval": true,
	}

	w := doJSON(t, r, http.MethodPost, "/api/roles/changes", "u-http-3", body)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/roles/changes", "sys-http", body)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Assignment *models.UserRoleAssignment `json:"assignment"`
	}
	decodeData(t, w, &result)
	require.NotNil(t, result.Assignment)
	require.Equal(t, models.RoleTeacher, result.Assignment.Role)
}

func TestAuditEndpointsEnforcePermissions(t *testing.T) {
	r, db := newTestRouter(t)
	seedAssignment(t, db, "u-http-4", models.RoleStudent, "inst-1", "dept-1")
	seedAssignment(t, db, "admin-http-2", models.RoleInstitutionAdmin, "inst-1", "")
	seedAssignment(t, db, "sys-http-2", models.RoleSystemAdmin, "", "")

	w := doJSON(t, r, http.MethodGet, "/api/audit/entries", "u-http-4", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/audit/entries", "admin-http-2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/audit/suspicious", "admin-http-2", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/audit/suspicious", "sys-http-2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/audit/entries?from=not-a-time", "admin-http-2", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserDirectoryEndpoints(t *testing.T) {
	r, db := newTestRouter(t)
	seedAssignment(t, db, "student-dir", models.RoleStudent, "inst-1", "dept-1")
	seedAssignment(t, db, "teacher-dir", models.RoleTeacher, "inst-1", "dept-1")

	subject := models.User{
		Username:      "jmoreau",
		Email:         "jmoreau@example.edu",
		DisplayName:   "J. Moreau",
		InstitutionID: "inst-1",
		DepartmentID:  "dept-1",
		IsActive:      true,
	}
	require.NoError(t, db.Create(&subject).Error)

	// The directory is guarded by user.view, which students lack.
	w := doJSON(t, r, http.MethodGet, "/api/users/"+subject.ID, "student-dir", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/users/"+subject.ID, "teacher-dir", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched models.User
	decodeData(t, w, &fetched)
	require.Equal(t, "jmoreau", fetched.Username)

	w = doJSON(t, r, http.MethodGet, "/api/users?institution_id=inst-1", "teacher-dir", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.User
	decodeData(t, w, &listed)
	require.Len(t, listed, 1)

	w = doJSON(t, r, http.MethodGet, "/api/users/missing", "teacher-dir", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/roles/changes/preview?from=student&to=teacher", "anyone", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var preview services.ImpactPreview
	decodeData(t, w, &preview)
	require.True(t, preview.IsUpgrade)
	require.Contains(t, preview.AddedPermissions, "class.create")

	w = doJSON(t, r, http.MethodGet, "/api/roles/changes/preview?from=student&to=wizard", "anyone", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
