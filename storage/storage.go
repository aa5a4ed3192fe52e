package storage

import (
	"context"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/transfer"
)

// Settings is the type specific configuration submitted when creating or
// updating a remote. Fields irrelevant to a type are left empty.
type Settings struct {
	Path         string `json:"path,omitempty"`
	Host         string `json:"host,omitempty"`
	Port         string `json:"port,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	BasePath     string `json:"base_path,omitempty"`
	Mode         string `json:"mode,omitempty"`
	ShareEmail   string `json:"share_email,omitempty"`
	Token        string `json:"token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Provisioned is what a backend resolved for a remote: the route backups
// are written under, an optional public link, and the configuration to
// persist so the tool entry can be recreated later.
type Provisioned struct {
	Route    string
	ShareURL string
	Config   map[string]string
}

// Backend covers the lifecycle of one remote type. Validate is structural
// only and must not touch the tool; the other calls may.
type Backend interface {
	Validate(settings Settings) error
	Provision(ctx context.Context, name string, settings Settings) (Provisioned, error)
	Rename(ctx context.Context, remote models.Remote, newName string, settings Settings) (Provisioned, error)
	Remove(ctx context.Context, remote models.Remote, removeFiles bool) (string, error)
}

// Backends holds one Backend per supported remote type.
type Backends struct {
	Local    Backend
	Sftp     Backend
	Drive    Backend
	OneDrive Backend
}

// NewBackends wires the concrete backends over a shared transfer tool.
func NewBackends(tool transfer.Tool, sharedDriveRemote string) Backends {
	return Backends{
		Local:    NewLocalBackend(tool),
		Sftp:     NewSftpBackend(tool),
		Drive:    NewDriveBackend(tool, sharedDriveRemote),
		OneDrive: NewOneDriveBackend(),
	}
}

// For returns the Backend for remoteType.
func (b Backends) For(remoteType string) (Backend, error) {
	switch remoteType {
	case models.RemoteTypeLocal:
		return b.Local, nil
	case models.RemoteTypeSftp:
		return b.Sftp, nil
	case models.RemoteTypeDrive:
		return b.Drive, nil
	case models.RemoteTypeOneDrive:
		return b.OneDrive, nil
	default:
		return nil, models.Errorf(models.ErrInvalidSettings, "unknown remote type %q", remoteType)
	}
}
