package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/rolegate/internal/middleware"
	"github.com/campushq/rolegate/internal/permissions"
	apperrors "github.com/campushq/rolegate/pkg/errors"
	"github.com/campushq/rolegate/pkg/response"
)

// PermissionHandler exposes the permission catalog and checking endpoints.
type PermissionHandler struct {
	checker *permissions.Checker
}

func NewPermissionHandler(checker *permissions.Checker) (*PermissionHandler, error) {
	if checker == nil {
		return nil, errors.New("permission handler: checker is required")
	}
	return &PermissionHandler{checker: checker}, nil
}

// GET /api/permissions/registry
func (h *PermissionHandler) Registry(c *gin.Context) {
	response.Success(c, http.StatusOK, permissions.GetAll())
}

// GET /api/permissions/my
func (h *PermissionHandler) MyPermissions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	defs, err := h.checker.GetUserPermissions(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, defs)
}

// GET /api/permissions/users/:id
func (h *PermissionHandler) UserPermissions(c *gin.Context) {
	defs, err := h.checker.GetUserPermissions(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, defs)
}

type checkRequest struct {
	Permission string                       `json:"permission" validate:"required"`
	Context    *permissions.ResourceContext `json:"context,omitempty"`
}

// POST /api/permissions/check
func (h *PermissionHandler) Check(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body checkRequest
	if !bindAndValidate(c, &body) {
		return
	}

	granted, err := h.checker.HasPermission(requestContext(c), userID, body.Permission, body.Context)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"permission": body.Permission, "granted": granted})
}

type bulkCheckRequest struct {
	Checks []permissions.BulkCheck `json:"checks" validate:"required,min=1"`
}

// POST /api/permissions/check/bulk
func (h *PermissionHandler) CheckBulk(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body bulkCheckRequest
	if !bindAndValidate(c, &body) {
		return
	}

	results, err := h.checker.CheckBulk(requestContext(c), userID, body.Checks)
	if err != nil {
		if errors.Is(err, permissions.ErrBulkLimitExceeded) {
			response.Error(c, apperrors.NewBadRequest(err.Error()))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}

type resourceAccessRequest struct {
	ResourceID   string                       `json:"resource_id"`
	ResourceType string                       `json:"resource_type" validate:"required"`
	Action       string                       `json:"action" validate:"required"`
	Context      *permissions.ResourceContext `json:"context,omitempty"`
}

// POST /api/permissions/resource-access
func (h *PermissionHandler) ResourceAccess(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body resourceAccessRequest
	if !bindAndValidate(c, &body) {
		return
	}

	action, ok := permissions.ParseAction(body.Action)
	if !ok {
		response.Error(c, apperrors.NewBadRequest("unknown action "+body.Action))
		return
	}

	allowed, err := h.checker.CanAccessResource(requestContext(c), userID, body.ResourceID, body.ResourceType, action, body.Context)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"allowed": allowed})
}

// DELETE /api/permissions/cache/:id
func (h *PermissionHandler) InvalidateUserCache(c *gin.Context) {
	if err := h.checker.InvalidateUserCache(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"invalidated": c.Param("id")})
}

// DELETE /api/permissions/cache
func (h *PermissionHandler) ClearCache(c *gin.Context) {
	if err := h.checker.ClearCache(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cleared": true})
}
