package app

import (
	"fmt"

	"github.com/labforge/lims-admin/internal/models"
	"gorm.io/gorm"
)

// HasAdminInitialized reports whether the system has at least one administrator.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
