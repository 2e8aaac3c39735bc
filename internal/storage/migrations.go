package storage

import (
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/pageshell/internal/model"
)

// AutoMigrate runs database migrations for the storage layer models.
func AutoMigrate(database *gorm.DB) error {
	return database.AutoMigrate(&model.NavigationRecord{})
}
