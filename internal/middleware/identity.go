package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushq/rolegate/pkg/errors"
	"github.com/campushq/rolegate/pkg/response"
)

const (
	// CtxUserIDKey is the gin context key carrying the caller's user id.
	CtxUserIDKey = "userID"
	// UserIDHeader is set by the upstream authentication gateway.
	UserIDHeader = "X-User-ID"
)

// Identity extracts the authenticated user id propagated by the gateway and
// stores it on the request context. Requests without one are rejected.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

// UserID returns the caller's user id from the gin context.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return "", false
	}
	userID, _ := v.(string)
	return userID, userID != ""
}
