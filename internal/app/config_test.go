package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushq/rolegate/internal/models"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, "database", cfg.Cache.Backend)
	require.Equal(t, 90*time.Second, cfg.Cache.TTL)

	require.Equal(t, 25, cfg.Authz.BulkCheckLimit)
	require.Equal(t, 72*time.Hour, cfg.Authz.RequestTTL)
	require.Equal(t, []models.Role{models.RoleDepartmentAdmin}, cfg.Authz.RequireApproval())
	require.Equal(t, []models.Role{models.RoleStudent}, cfg.Authz.AutoApprove())

	require.Equal(t, 180, cfg.Audit.RetentionDays)
	require.Equal(t, 30*time.Minute, cfg.Audit.RapidChangeWindow)
	require.Equal(t, 5, cfg.Audit.RapidChangeThreshold)
	require.Equal(t, 8, cfg.Audit.BusinessHoursStart)
	require.Equal(t, 18, cfg.Audit.BusinessHoursEnd)

	require.False(t, cfg.Maintenance.Enabled)
	require.Equal(t, "0 */2 * * *", cfg.Maintenance.Schedule)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.False(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 50, cfg.Authz.BulkCheckLimit)
	require.Equal(t, 7*24*time.Hour, cfg.Authz.RequestTTL)
	require.Equal(t, 365, cfg.Audit.RetentionDays)
	require.Equal(t, time.Hour, cfg.Audit.RapidChangeWindow)
	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@hourly", cfg.Maintenance.Schedule)
}

func TestParseRolesSkipsUnknown(t *testing.T) {
	cfg := AuthzConfig{RequireApprovalRoles: []string{"teacher", "wizard", "system_admin"}}
	require.Equal(t, []models.Role{models.RoleTeacher, models.RoleSystemAdmin}, cfg.RequireApproval())
}
