package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/grade-roster-api/internal/models"
)

// Migrate creates or updates the roster tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.DatasetGeneration{}, &models.DatasetPointer{}, &models.GradeRecord{})
}
