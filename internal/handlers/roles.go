package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushq/rolegate/internal/middleware"
	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/internal/permissions"
	"github.com/campushq/rolegate/internal/services"
	apperrors "github.com/campushq/rolegate/pkg/errors"
	"github.com/campushq/rolegate/pkg/response"
)

// RoleHandler exposes the role change workflow.
type RoleHandler struct {
	svc     *services.RoleChangeService
	checker *permissions.Checker
}

func NewRoleHandler(svc *services.RoleChangeService, checker *permissions.Checker) (*RoleHandler, error) {
	if svc == nil {
		return nil, errors.New("role handler: role change service is required")
	}
	if checker == nil {
		return nil, errors.New("role handler: checker is required")
	}
	return &RoleHandler{svc: svc, checker: checker}, nil
}

type roleChangeRequest struct {
	UserID             string `json:"user_id" validate:"required"`
	CurrentRole        string `json:"current_role" validate:"required"`
	NewRole            string `json:"new_role" validate:"required"`
	Reason             string `json:"reason" validate:"required,min=3,max=500"`
	InstitutionID      string `json:"institution_id"`
	DepartmentID       string `json:"department_id"`
	VerificationMethod string `json:"verification_method"`
	BypassApproval     bool   `json:"bypass_approval"`
}

func (h *RoleHandler) changeInput(c *gin.Context, body roleChangeRequest, actor string) services.RoleChangeInput {
	return services.RoleChangeInput{
		UserID:             body.UserID,
		RequestedBy:        actor,
		CurrentRole:        models.Role(strings.TrimSpace(body.CurrentRole)),
		NewRole:            models.Role(strings.TrimSpace(body.NewRole)),
		Reason:             body.Reason,
		InstitutionID:      body.InstitutionID,
		DepartmentID:       body.DepartmentID,
		VerificationMethod: body.VerificationMethod,
		IPAddress:          c.ClientIP(),
		UserAgent:          c.Request.UserAgent(),
		SessionID:          c.GetHeader("X-Session-ID"),
	}
}

// POST /api/roles/changes
func (h *RoleHandler) ProcessChange(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body roleChangeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if body.BypassApproval {
		// Only a system administrator may skip the approval workflow.
		isAdmin, err := h.checker.IsAdmin(requestContext(c), actor, permissions.ScopeSystem, "")
		if err != nil {
			response.Error(c, err)
			return
		}
		if !isAdmin {
			response.Error(c, apperrors.ErrForbidden)
			return
		}
	}

	result, err := h.svc.Process(requestContext(c), h.changeInput(c, body, actor), services.ProcessOptions{
		BypassApproval: body.BypassApproval,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.Success {
		response.Error(c, apperrors.NewBadRequest(result.Error))
		return
	}

	status := http.StatusOK
	if result.Request != nil {
		status = http.StatusAccepted
	}
	response.Success(c, status, result)
}

// POST /api/roles/changes/validate
func (h *RoleHandler) ValidateChange(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body roleChangeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := h.svc.Validate(requestContext(c), h.changeInput(c, body, actor))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/roles/changes/preview
func (h *RoleHandler) PreviewChange(c *gin.Context) {
	from := models.Role(strings.TrimSpace(c.Query("from")))
	to := models.Role(strings.TrimSpace(c.Query("to")))

	preview, err := h.svc.Preview(from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, preview)
}

// GET /api/roles/requests
func (h *RoleHandler) ListRequests(c *gin.Context) {
	requests, err := h.svc.PendingRequests(requestContext(c), strings.TrimSpace(c.Query("user_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

// GET /api/roles/requests/:id
func (h *RoleHandler) GetRequest(c *gin.Context) {
	request, err := h.svc.GetRequest(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

type reviewRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

// POST /api/roles/requests/:id/approve
func (h *RoleHandler) ApproveRequest(c *gin.Context) {
	approver, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body reviewRequest
	if !bindAndValidate(c, &body) {
		return
	}

	assignment, err := h.svc.Approve(requestContext(c), c.Param("id"), approver, body.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, assignment)
}

// POST /api/roles/requests/:id/deny
func (h *RoleHandler) DenyRequest(c *gin.Context) {
	approver, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body reviewRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.svc.Deny(requestContext(c), c.Param("id"), approver, body.Notes); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"denied": c.Param("id")})
}
