package storage

import (
	"context"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/transfer"
	"github.com/gabofunebre/backuper/utils"

	"github.com/sirupsen/logrus"
)

// LocalBackend provisions directories on the host filesystem. The route is
// the directory itself; a matching alias entry is kept in the tool
// configuration so dumps and restores see local remotes too.
type LocalBackend struct {
	tool transfer.Tool
}

func NewLocalBackend(tool transfer.Tool) *LocalBackend {
	return &LocalBackend{tool: tool}
}

func (b *LocalBackend) Validate(settings Settings) error {
	if settings.Path == "" {
		return models.NewError(models.ErrInvalidSettings, "path is required for local remotes")
	}
	return nil
}

func (b *LocalBackend) Provision(ctx context.Context, name string, settings Settings) (Provisioned, error) {
	route := utils.JoinLocalPath(utils.NormalizeLocalPath(settings.Path), name)
	logrus.Infof("Provisioning local remote %s at %s", name, route)
	if err := b.tool.EnsureDir(ctx, route); err != nil {
		return Provisioned{}, err
	}
	if err := b.tool.CreateConfig(ctx, name, "alias", map[string]string{"remote": route}); err != nil {
		return Provisioned{}, err
	}
	return Provisioned{
		Route:    route,
		ShareURL: route,
		Config:   map[string]string{"type": "alias", "remote": route},
	}, nil
}

// Rename creates the directory under the new name and moves the old
// directory's contents over when it holds any, then refreshes the alias
// entry. An empty old directory is left in place.
func (b *LocalBackend) Rename(ctx context.Context, remote models.Remote, newName string, settings Settings) (Provisioned, error) {
	base := settings.Path
	if base == "" {
		base = utils.ParentLocalPath(remote.Route)
	}
	route := utils.JoinLocalPath(utils.NormalizeLocalPath(base), newName)
	if route != remote.Route {
		if err := b.tool.EnsureDir(ctx, route); err != nil {
			return Provisioned{}, err
		}
		objects, err := b.tool.List(ctx, remote.Route)
		if err != nil {
			logrus.WithFields(logrus.Fields{"remote": remote.Name, "route": remote.Route}).
				Warn("Could not list old local route, skipping content move: ", err)
		} else if len(objects) > 0 {
			if err := b.tool.Move(ctx, remote.Route, route); err != nil {
				return Provisioned{}, err
			}
		}
	}
	if err := b.tool.DeleteConfig(ctx, remote.Name); err != nil {
		logrus.Debugf("No alias entry to delete for %s: %v", remote.Name, err)
	}
	if err := b.tool.CreateConfig(ctx, newName, "alias", map[string]string{"remote": route}); err != nil {
		return Provisioned{}, err
	}
	return Provisioned{
		Route:    route,
		ShareURL: route,
		Config:   map[string]string{"type": "alias", "remote": route},
	}, nil
}

// Remove purges the provisioned directory and drops the alias entry. Local
// directories are always owned by this service, so removeFiles is implied.
func (b *LocalBackend) Remove(ctx context.Context, remote models.Remote, removeFiles bool) (string, error) {
	logrus.Infof("Removing local remote %s at %s", remote.Name, remote.Route)
	if err := b.tool.Purge(ctx, remote.Route); err != nil {
		return "", err
	}
	if err := b.tool.DeleteConfig(ctx, remote.Name); err != nil {
		logrus.Debugf("No alias entry to delete for %s: %v", remote.Name, err)
	}
	return remote.Route, nil
}
