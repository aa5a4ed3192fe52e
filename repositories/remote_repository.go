package repositories

import (
	"errors"

	"github.com/gabofunebre/backuper/models"

	"gorm.io/gorm"
)

// RemoteRepository is the keyed store for provisioned remotes.
type RemoteRepository interface {
	Create(remote *models.Remote) error
	Update(remote *models.Remote) error
	Delete(name string) error
	FindByName(name string) (*models.Remote, error)
	List() ([]models.Remote, error)
}

type remoteRepositoryImpl struct {
	db *gorm.DB
}

// NewRemoteRepository creates a new RemoteRepository instance.
func NewRemoteRepository(db *gorm.DB) RemoteRepository {
	return &remoteRepositoryImpl{db: db}
}

func (r *remoteRepositoryImpl) Create(remote *models.Remote) error {
	return r.db.Create(remote).Error
}

func (r *remoteRepositoryImpl) Update(remote *models.Remote) error {
	return r.db.Save(remote).Error
}

func (r *remoteRepositoryImpl) Delete(name string) error {
	return r.db.Where("name = ?", name).Delete(&models.Remote{}).Error
}

func (r *remoteRepositoryImpl) FindByName(name string) (*models.Remote, error) {
	var remote models.Remote
	err := r.db.Where("name = ?", name).First(&remote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.WrapError(models.ErrNotFound, "remote not found", err)
		}
		return nil, err
	}
	return &remote, nil
}

func (r *remoteRepositoryImpl) List() ([]models.Remote, error) {
	var remotes []models.Remote
	if err := r.db.Order("name").Find(&remotes).Error; err != nil {
		return nil, err
	}
	return remotes, nil
}
