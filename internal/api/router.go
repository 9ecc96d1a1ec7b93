package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/app"
	"github.com/campushq/rolegate/internal/handlers"
	"github.com/campushq/rolegate/internal/middleware"
	"github.com/campushq/rolegate/internal/permissions"
	"github.com/campushq/rolegate/internal/services"
)

// Deps carries the constructed services the router wires into handlers.
type Deps struct {
	DB      *gorm.DB
	Checker *permissions.Checker
	Roles   *services.RoleChangeService
	Audit   *services.RoleAuditService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Deps) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Checker == nil {
		return nil, fmt.Errorf("permission checker must be provided")
	}
	if deps.Roles == nil {
		return nil, fmt.Errorf("role change service must be provided")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit service must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.Identity())

	permHandler, err := handlers.NewPermissionHandler(deps.Checker)
	if err != nil {
		return nil, err
	}
	perms := api.Group("/permissions")
	{
		perms.GET("/registry", permHandler.Registry)
		perms.GET("/my", permHandler.MyPermissions)
		perms.GET("/users/:id", middleware.RequirePermission(deps.Checker, "user.view"), permHandler.UserPermissions)
		perms.POST("/check", permHandler.Check)
		perms.POST("/check/bulk", permHandler.CheckBulk)
		perms.POST("/resource-access", permHandler.ResourceAccess)
		perms.DELETE("/cache/:id", middleware.RequirePermission(deps.Checker, "system.maintenance"), permHandler.InvalidateUserCache)
		perms.DELETE("/cache", middleware.RequirePermission(deps.Checker, "system.maintenance"), permHandler.ClearCache)
	}

	userHandler, err := handlers.NewUserHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	users := api.Group("/users", middleware.RequirePermission(deps.Checker, "user.view"))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
	}

	roleHandler, err := handlers.NewRoleHandler(deps.Roles, deps.Checker)
	if err != nil {
		return nil, err
	}
	roles := api.Group("/roles")
	{
		// Self-service requests are allowed; the service checks the actor's
		// rights when the change targets someone else.
		roles.POST("/changes", roleHandler.ProcessChange)
		roles.POST("/changes/validate", roleHandler.ValidateChange)
		roles.GET("/changes/preview", roleHandler.PreviewChange)
		roles.GET("/requests", middleware.RequirePermission(deps.Checker, "role.view"), roleHandler.ListRequests)
		roles.GET("/requests/:id", middleware.RequirePermission(deps.Checker, "role.view"), roleHandler.GetRequest)
		roles.POST("/requests/:id/approve", middleware.RequirePermission(deps.Checker, "role.approve"), roleHandler.ApproveRequest)
		roles.POST("/requests/:id/deny", middleware.RequirePermission(deps.Checker, "role.approve"), roleHandler.DenyRequest)
	}

	auditHandler, err := handlers.NewAuditHandler(deps.Audit)
	if err != nil {
		return nil, err
	}
	audit := api.Group("/audit")
	{
		audit.GET("/entries", middleware.RequirePermission(deps.Checker, "audit.view"), auditHandler.ListEntries)
		audit.POST("/reports", middleware.RequirePermission(deps.Checker, "audit.view"), auditHandler.GenerateReport)
		audit.GET("/suspicious", middleware.RequirePermission(deps.Checker, "system.audit"), auditHandler.ListSuspicious)
		audit.POST("/suspicious/:id/flag", middleware.RequirePermission(deps.Checker, "system.audit"), auditHandler.FlagSuspicious)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
