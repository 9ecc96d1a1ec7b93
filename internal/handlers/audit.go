package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/rolegate/internal/middleware"
	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/internal/services"
	apperrors "github.com/campushq/rolegate/pkg/errors"
	"github.com/campushq/rolegate/pkg/response"
)

// AuditHandler exposes the audit log, reports and suspicious activity review.
type AuditHandler struct {
	svc *services.RoleAuditService
}

func NewAuditHandler(svc *services.RoleAuditService) (*AuditHandler, error) {
	if svc == nil {
		return nil, errors.New("audit handler: audit service is required")
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /api/audit/entries
func (h *AuditHandler) ListEntries(c *gin.Context) {
	filters := services.AuditQueryFilters{
		UserID:        strings.TrimSpace(c.Query("user_id")),
		ChangedBy:     strings.TrimSpace(c.Query("changed_by")),
		Action:        models.AuditAction(strings.TrimSpace(c.Query("action"))),
		Role:          models.Role(strings.TrimSpace(c.Query("role"))),
		InstitutionID: strings.TrimSpace(c.Query("institution_id")),
		DepartmentID:  strings.TrimSpace(c.Query("department_id")),
		Limit:         parseIntQuery(c, "limit", 50),
		Offset:        parseIntQuery(c, "offset", 0),
	}

	var ok bool
	if filters.From, ok = parseTimeQuery(c, "from"); !ok {
		return
	}
	if filters.To, ok = parseTimeQuery(c, "to"); !ok {
		return
	}

	result, err := h.svc.Query(requestContext(c), filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, result.Entries, &response.Meta{
		Limit:   result.Limit,
		Offset:  result.Offset,
		Total:   int(result.TotalCount),
		HasMore: result.HasMore,
	})
}

type reportRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	StartDate     string `json:"start_date" validate:"required"`
	EndDate       string `json:"end_date" validate:"required"`
	InstitutionID string `json:"institution_id"`
}

// POST /api/audit/reports
func (h *AuditHandler) GenerateReport(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body reportRequest
	if !bindAndValidate(c, &body) {
		return
	}

	start, err := time.Parse(time.RFC3339, body.StartDate)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("start_date must be RFC 3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, body.EndDate)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("end_date must be RFC 3339"))
		return
	}

	report, err := h.svc.GenerateReport(requestContext(c), body.Title, userID, start, end, body.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, report)
}

// GET /api/audit/suspicious
func (h *AuditHandler) ListSuspicious(c *gin.Context) {
	filters := services.SuspiciousFilters{
		UserID: strings.TrimSpace(c.Query("user_id")),
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}

	for _, value := range splitQuery(c.Query("severity")) {
		filters.Severities = append(filters.Severities, models.Severity(value))
	}
	for _, value := range splitQuery(c.Query("type")) {
		filters.Types = append(filters.Types, models.SuspiciousType(value))
	}
	if raw := strings.TrimSpace(c.Query("flagged")); raw != "" {
		flagged, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("flagged must be a boolean"))
			return
		}
		filters.Flagged = &flagged
	}

	var ok bool
	if filters.From, ok = parseTimeQuery(c, "from"); !ok {
		return
	}
	if filters.To, ok = parseTimeQuery(c, "to"); !ok {
		return
	}

	activities, err := h.svc.GetSuspicious(requestContext(c), filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, activities)
}

type flagRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

// POST /api/audit/suspicious/:id/flag
func (h *AuditHandler) FlagSuspicious(c *gin.Context) {
	reviewerID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body flagRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.svc.FlagSuspicious(requestContext(c), c.Param("id"), reviewerID, body.Notes); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"flagged": c.Param("id")})
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(key+" must be RFC 3339"))
		return nil, false
	}
	return &parsed, true
}

func splitQuery(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
