package repositories

import (
	"github.com/gabofunebre/backuper/models"

	"gorm.io/gorm"
)

// ExecutionRepository is the append-only store of backup run records.
type ExecutionRepository interface {
	Record(execution *models.JobExecution) error
	ListRecent(appName string, limit int) ([]models.JobExecution, error)
}

type executionRepositoryImpl struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new ExecutionRepository instance.
func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepositoryImpl{db: db}
}

func (r *executionRepositoryImpl) Record(execution *models.JobExecution) error {
	return r.db.Create(execution).Error
}

func (r *executionRepositoryImpl) ListRecent(appName string, limit int) ([]models.JobExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Order("started_at desc").Limit(limit)
	if appName != "" {
		query = query.Where("app_name = ?", appName)
	}
	var executions []models.JobExecution
	if err := query.Find(&executions).Error; err != nil {
		return nil, err
	}
	return executions, nil
}
