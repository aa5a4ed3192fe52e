package storage

import (
	"context"
	"strconv"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/transfer"
	"github.com/gabofunebre/backuper/utils"

	"github.com/sirupsen/logrus"
)

// SftpBackend provisions rclone sftp configuration entries plus a dedicated
// directory under the caller-chosen base path. Passwords are obscured before
// they touch the configuration file.
type SftpBackend struct {
	tool transfer.Tool
}

func NewSftpBackend(tool transfer.Tool) *SftpBackend {
	return &SftpBackend{tool: tool}
}

func (b *SftpBackend) Validate(settings Settings) error {
	if settings.Host == "" {
		return models.NewError(models.ErrInvalidSettings, "host is required for sftp remotes")
	}
	if settings.Username == "" {
		return models.NewError(models.ErrInvalidSettings, "username is required for sftp remotes")
	}
	if settings.Password == "" {
		return models.NewError(models.ErrInvalidSettings, "password is required for sftp remotes")
	}
	if settings.BasePath == "" {
		return models.NewError(models.ErrInvalidSettings, "base_path is required for sftp remotes")
	}
	if settings.Port != "" {
		if _, err := strconv.Atoi(settings.Port); err != nil {
			return models.NewError(models.ErrInvalidSettings, "port must be numeric")
		}
	}
	return nil
}

func (b *SftpBackend) Provision(ctx context.Context, name string, settings Settings) (Provisioned, error) {
	logrus.Infof("Provisioning sftp remote %s on %s", name, settings.Host)
	obscured, err := b.tool.Obscure(ctx, settings.Password)
	if err != nil {
		return Provisioned{}, err
	}
	params := map[string]string{
		"host": settings.Host,
		"user": settings.Username,
		"pass": obscured,
	}
	if settings.Port != "" {
		params["port"] = settings.Port
	}
	if err := b.tool.CreateConfig(ctx, name, "sftp", params); err != nil {
		return Provisioned{}, err
	}
	base := utils.NormalizeRemotePath(settings.BasePath)
	route := name + ":" + utils.JoinRemotePath(base, name)
	if err := b.tool.EnsureDir(ctx, route); err != nil {
		b.cleanupEntry(ctx, name)
		return Provisioned{}, err
	}
	if err := b.tool.CheckDir(ctx, route); err != nil {
		b.cleanupEntry(ctx, name)
		return Provisioned{}, err
	}
	return Provisioned{Route: route, Config: persistedSftpConfig(params, base)}, nil
}

// Rename recreates the configuration entry under the new name, merging
// unchanged fields from the stored entry, and ensures the directory under
// the (possibly new) base path. Existing files are not relocated.
func (b *SftpBackend) Rename(ctx context.Context, remote models.Remote, newName string, settings Settings) (Provisioned, error) {
	stored := remote.DecodeConfig()
	params := map[string]string{
		"host": firstNonEmpty(settings.Host, stored["host"]),
		"user": firstNonEmpty(settings.Username, stored["user"]),
	}
	if settings.Password != "" {
		obscured, err := b.tool.Obscure(ctx, settings.Password)
		if err != nil {
			return Provisioned{}, err
		}
		params["pass"] = obscured
	} else {
		params["pass"] = stored["pass"]
	}
	if port := firstNonEmpty(settings.Port, stored["port"]); port != "" {
		params["port"] = port
	}
	if params["host"] == "" || params["user"] == "" || params["pass"] == "" {
		return Provisioned{}, models.NewError(models.ErrInvalidSettings, "sftp remote is missing stored credentials")
	}
	base := utils.NormalizeRemotePath(firstNonEmpty(settings.BasePath, stored["base_path"]))
	if err := b.tool.DeleteConfig(ctx, remote.Name); err != nil {
		logrus.Debugf("No sftp entry to delete for %s: %v", remote.Name, err)
	}
	if err := b.tool.CreateConfig(ctx, newName, "sftp", params); err != nil {
		return Provisioned{}, err
	}
	route := newName + ":" + utils.JoinRemotePath(base, newName)
	if err := b.tool.EnsureDir(ctx, route); err != nil {
		b.cleanupEntry(ctx, newName)
		return Provisioned{}, err
	}
	return Provisioned{Route: route, Config: persistedSftpConfig(params, base)}, nil
}

// Remove drops the configuration entry; the stored files survive unless
// removeFiles asks for the directory to be purged first.
func (b *SftpBackend) Remove(ctx context.Context, remote models.Remote, removeFiles bool) (string, error) {
	removed := ""
	if removeFiles && remote.Route != "" {
		logrus.Infof("Purging sftp remote %s at %s", remote.Name, remote.Route)
		if err := b.tool.Purge(ctx, remote.Route); err != nil {
			return "", err
		}
		removed = remote.Route
	}
	if err := b.tool.DeleteConfig(ctx, remote.Name); err != nil {
		return removed, err
	}
	return removed, nil
}

func (b *SftpBackend) cleanupEntry(ctx context.Context, name string) {
	if err := b.tool.DeleteConfig(ctx, name); err != nil {
		logrus.Warnf("Could not clean up sftp entry %s: %v", name, err)
	}
}

func persistedSftpConfig(params map[string]string, basePath string) map[string]string {
	persisted := map[string]string{"type": "sftp", "base_path": basePath}
	for key, value := range params {
		persisted[key] = value
	}
	return persisted
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
