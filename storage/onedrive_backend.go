package storage

import (
	"context"

	"github.com/gabofunebre/backuper/models"
)

// OneDriveBackend is a declared but unimplemented backend. Every operation
// is rejected so the type can appear in the API without being usable.
type OneDriveBackend struct{}

func NewOneDriveBackend() *OneDriveBackend {
	return &OneDriveBackend{}
}

func (b *OneDriveBackend) Validate(Settings) error {
	return errOneDrive()
}

func (b *OneDriveBackend) Provision(context.Context, string, Settings) (Provisioned, error) {
	return Provisioned{}, errOneDrive()
}

func (b *OneDriveBackend) Rename(context.Context, models.Remote, string, Settings) (Provisioned, error) {
	return Provisioned{}, errOneDrive()
}

func (b *OneDriveBackend) Remove(context.Context, models.Remote, bool) (string, error) {
	return "", errOneDrive()
}

func errOneDrive() error {
	return models.NewError(models.ErrNotSupported, "onedrive remotes are not supported yet")
}
