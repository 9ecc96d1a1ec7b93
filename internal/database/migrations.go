package database

import (
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserRoleAssignment{},
		&models.RoleRequest{},
		&models.RoleAuditEntry{},
		&models.SuspiciousActivity{},
		&models.AuditReport{},
		&models.CacheEntry{},
	)
}
