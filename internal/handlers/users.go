package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/models"
	apperrors "github.com/campushq/rolegate/pkg/errors"
	"github.com/campushq/rolegate/pkg/response"
)

// UserHandler exposes the subject directory. Accounts are provisioned by the
// upstream identity service; these endpoints only read.
type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) (*UserHandler, error) {
	if db == nil {
		return nil, errors.New("user handler: db is required")
	}
	return &UserHandler{db: db}, nil
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	var user models.User
	err := h.db.WithContext(requestContext(c)).
		Preload("Assignments").
		First(&user, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.Error(c, apperrors.ErrNotFound)
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := h.db.WithContext(requestContext(c)).Model(&models.User{})
	if institutionID := c.Query("institution_id"); institutionID != "" {
		query = query.Where("institution_id = ?", institutionID)
	}
	if departmentID := c.Query("department_id"); departmentID != "" {
		query = query.Where("department_id = ?", departmentID)
	}

	var users []models.User
	if err := query.Order("username").Limit(limit).Find(&users).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, users)
}
