package repositories

import (
	"errors"

	"github.com/gabofunebre/backuper/models"

	"gorm.io/gorm"
)

// AppRepository is the keyed store for registered applications.
type AppRepository interface {
	Create(app *models.App) error
	Update(app *models.App) error
	Delete(name string) error
	FindByName(name string) (*models.App, error)
	List() ([]models.App, error)
	ClearRemote(remoteName string) error
	RenameRemote(oldName, newName string) error
}

type appRepositoryImpl struct {
	db *gorm.DB
}

// NewAppRepository creates a new AppRepository instance.
func NewAppRepository(db *gorm.DB) AppRepository {
	return &appRepositoryImpl{db: db}
}

func (r *appRepositoryImpl) Create(app *models.App) error {
	return r.db.Create(app).Error
}

func (r *appRepositoryImpl) Update(app *models.App) error {
	return r.db.Save(app).Error
}

func (r *appRepositoryImpl) Delete(name string) error {
	return r.db.Where("name = ?", name).Delete(&models.App{}).Error
}

func (r *appRepositoryImpl) FindByName(name string) (*models.App, error) {
	var app models.App
	err := r.db.Where("name = ?", name).First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.WrapError(models.ErrNotFound, "app not found", err)
		}
		return nil, err
	}
	return &app, nil
}

func (r *appRepositoryImpl) List() ([]models.App, error) {
	var apps []models.App
	if err := r.db.Order("name").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// ClearRemote unsets the remote reference on every app pointing at it.
func (r *appRepositoryImpl) ClearRemote(remoteName string) error {
	return r.db.Model(&models.App{}).
		Where("remote_name = ?", remoteName).
		Update("remote_name", "").
		Error
}

// RenameRemote follows a remote rename on every app pointing at it.
func (r *appRepositoryImpl) RenameRemote(oldName, newName string) error {
	return r.db.Model(&models.App{}).
		Where("remote_name = ?", oldName).
		Update("remote_name", newName).
		Error
}
