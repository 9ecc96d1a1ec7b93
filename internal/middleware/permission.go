package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/rolegate/internal/permissions"
	"github.com/campushq/rolegate/pkg/errors"
	"github.com/campushq/rolegate/pkg/metrics"
	"github.com/campushq/rolegate/pkg/response"
)

// RequirePermission checks that the authenticated user has the provided permission ID.
func RequirePermission(checker *permissions.Checker, permissionID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		allowed, err := checker.HasPermission(c.Request.Context(), userID, permissionID, nil)
		if err != nil {
			metrics.PermissionChecks.WithLabelValues(permissionID, "error").Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": errors.ErrInternalServer.Code, "message": "permission check failed"}})
			return
		}
		if !allowed {
			metrics.PermissionChecks.WithLabelValues(permissionID, "denied").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(permissionID, "allowed").Inc()
		c.Next()
	}
}
