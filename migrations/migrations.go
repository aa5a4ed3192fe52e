package migrations

import (
	"fmt"
	"log"

	"github.com/gabofunebre/backuper/models"

	"gorm.io/gorm"
)

// RunMigrations creates or updates the registry tables.
func RunMigrations(db *gorm.DB) error {
	log.Println("Running migrations...")

	if err := db.AutoMigrate(&models.App{}); err != nil {
		return fmt.Errorf("failed to migrate App: %w", err)
	}

	if err := db.AutoMigrate(&models.Remote{}); err != nil {
		return fmt.Errorf("failed to migrate Remote: %w", err)
	}

	if err := db.AutoMigrate(&models.JobExecution{}); err != nil {
		return fmt.Errorf("failed to migrate JobExecution: %w", err)
	}

	log.Println("Migrations completed successfully!")
	return nil
}
