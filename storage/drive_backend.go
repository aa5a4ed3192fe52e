package storage

import (
	"context"
	"encoding/json"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// DriveBackend provisions Google Drive destinations in two modes. Shared
// mode creates a folder under the pre-provisioned shared account and
// publishes a link to it; custom mode creates a dedicated drive entry from
// the caller's own OAuth token.
type DriveBackend struct {
	tool         transfer.Tool
	sharedRemote string
}

func NewDriveBackend(tool transfer.Tool, sharedRemote string) *DriveBackend {
	return &DriveBackend{tool: tool, sharedRemote: sharedRemote}
}

// ParseDriveToken decodes a drive OAuth token JSON blob. The token must
// carry at least an access or refresh token to be usable.
func ParseDriveToken(raw string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, models.WrapError(models.ErrInvalidSettings, "token is not valid OAuth token JSON", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, models.NewError(models.ErrInvalidSettings, "token carries neither an access nor a refresh token")
	}
	return &token, nil
}

func (b *DriveBackend) Validate(settings Settings) error {
	switch settings.Mode {
	case models.DriveModeShared:
		return nil
	case models.DriveModeCustom:
		if settings.Token == "" {
			return models.NewError(models.ErrInvalidSettings, "token is required for custom drive remotes")
		}
		_, err := ParseDriveToken(settings.Token)
		return err
	default:
		return models.Errorf(models.ErrInvalidSettings, "mode must be %q or %q", models.DriveModeShared, models.DriveModeCustom)
	}
}

func (b *DriveBackend) Provision(ctx context.Context, name string, settings Settings) (Provisioned, error) {
	if settings.Mode == models.DriveModeShared {
		return b.provisionShared(ctx, name, settings)
	}
	return b.provisionCustom(ctx, name, settings)
}

func (b *DriveBackend) provisionShared(ctx context.Context, name string, settings Settings) (Provisioned, error) {
	if b.sharedRemote == "" {
		return Provisioned{}, models.NewError(models.ErrBackendUnavailable, "no shared drive account is configured")
	}
	folder := b.sharedRemote + ":" + name
	logrus.Infof("Provisioning shared drive remote %s at %s", name, folder)
	if err := b.tool.EnsureDir(ctx, folder); err != nil {
		return Provisioned{}, err
	}
	if err := b.tool.CreateConfig(ctx, name, "alias", map[string]string{"remote": folder}); err != nil {
		return Provisioned{}, err
	}
	link, err := b.tool.Link(ctx, folder)
	if err != nil {
		b.cleanupShared(ctx, name, folder)
		return Provisioned{}, err
	}
	return Provisioned{Route: folder, ShareURL: link, Config: sharedDriveConfig(folder, settings.ShareEmail)}, nil
}

func (b *DriveBackend) provisionCustom(ctx context.Context, name string, settings Settings) (Provisioned, error) {
	logrus.Infof("Provisioning custom drive remote %s", name)
	params := customDriveParams(settings.Token, settings.ClientID, settings.ClientSecret)
	if err := b.tool.CreateConfig(ctx, name, "drive", params); err != nil {
		return Provisioned{}, err
	}
	return Provisioned{Route: name + ":", Config: b.persistedCustomConfig(ctx, name, params)}, nil
}

// Rename moves the shared folder (or recreates the custom entry) under the
// new name and refreshes the configuration entry and share link.
func (b *DriveBackend) Rename(ctx context.Context, remote models.Remote, newName string, settings Settings) (Provisioned, error) {
	stored := remote.DecodeConfig()
	if driveMode(stored, settings) == models.DriveModeShared {
		return b.renameShared(ctx, remote, newName, settings, stored)
	}
	return b.renameCustom(ctx, remote, newName, settings, stored)
}

func (b *DriveBackend) renameShared(ctx context.Context, remote models.Remote, newName string, settings Settings, stored map[string]string) (Provisioned, error) {
	if b.sharedRemote == "" {
		return Provisioned{}, models.NewError(models.ErrBackendUnavailable, "no shared drive account is configured")
	}
	folder := b.sharedRemote + ":" + newName
	if remote.Route != "" && remote.Route != folder {
		if err := b.tool.Move(ctx, remote.Route, folder); err != nil {
			return Provisioned{}, err
		}
	} else if err := b.tool.EnsureDir(ctx, folder); err != nil {
		return Provisioned{}, err
	}
	if err := b.tool.DeleteConfig(ctx, remote.Name); err != nil {
		logrus.Debugf("No drive entry to delete for %s: %v", remote.Name, err)
	}
	if err := b.tool.CreateConfig(ctx, newName, "alias", map[string]string{"remote": folder}); err != nil {
		return Provisioned{}, err
	}
	link, err := b.tool.Link(ctx, folder)
	if err != nil {
		return Provisioned{}, err
	}
	email := firstNonEmpty(settings.ShareEmail, stored["share_email"])
	provisioned := Provisioned{Route: folder, ShareURL: link, Config: sharedDriveConfig(folder, email)}
	return provisioned, nil
}

func (b *DriveBackend) renameCustom(ctx context.Context, remote models.Remote, newName string, settings Settings, stored map[string]string) (Provisioned, error) {
	token := firstNonEmpty(settings.Token, stored["token"])
	if token == "" {
		return Provisioned{}, models.NewError(models.ErrInvalidSettings, "drive remote is missing a stored token")
	}
	params := customDriveParams(token,
		firstNonEmpty(settings.ClientID, stored["client_id"]),
		firstNonEmpty(settings.ClientSecret, stored["client_secret"]))
	if err := b.tool.DeleteConfig(ctx, remote.Name); err != nil {
		logrus.Debugf("No drive entry to delete for %s: %v", remote.Name, err)
	}
	if err := b.tool.CreateConfig(ctx, newName, "drive", params); err != nil {
		return Provisioned{}, err
	}
	return Provisioned{Route: newName + ":", Config: b.persistedCustomConfig(ctx, newName, params)}, nil
}

// Remove purges the shared folder before dropping its entry. Custom remotes
// point at the owner's own account, so their files survive unless
// removeFiles asks otherwise.
func (b *DriveBackend) Remove(ctx context.Context, remote models.Remote, removeFiles bool) (string, error) {
	stored := remote.DecodeConfig()
	if driveMode(stored, Settings{}) == models.DriveModeShared {
		logrus.Infof("Removing shared drive remote %s at %s", remote.Name, remote.Route)
		if err := b.tool.Purge(ctx, remote.Route); err != nil {
			return "", err
		}
		if err := b.tool.DeleteConfig(ctx, remote.Name); err != nil {
			return remote.Route, err
		}
		return remote.Route, nil
	}
	removed := ""
	if removeFiles && remote.Route != "" {
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

func (b *DriveBackend) cleanupShared(ctx context.Context, name, folder string) {
	if err := b.tool.DeleteConfig(ctx, name); err != nil {
		logrus.Warnf("Could not clean up drive entry %s: %v", name, err)
	}
	if err := b.tool.Purge(ctx, folder); err != nil {
		logrus.Warnf("Could not clean up drive folder %s: %v", folder, err)
	}
}

// persistedCustomConfig prefers the tool's own view of the entry, which
// includes whatever fields it normalized in, over the submitted params.
func (b *DriveBackend) persistedCustomConfig(ctx context.Context, name string, params map[string]string) map[string]string {
	persisted := map[string]string{"type": "drive"}
	entries, err := b.tool.DumpConfig(ctx)
	if err == nil && entries[name] != nil {
		for key, value := range entries[name] {
			persisted[key] = value
		}
	} else {
		for key, value := range params {
			persisted[key] = value
		}
	}
	persisted["mode"] = models.DriveModeCustom
	return persisted
}

func customDriveParams(token, clientID, clientSecret string) map[string]string {
	params := map[string]string{"scope": "drive", "token": token}
	if clientID != "" {
		params["client_id"] = clientID
	}
	if clientSecret != "" {
		params["client_secret"] = clientSecret
	}
	return params
}

func sharedDriveConfig(folder, shareEmail string) map[string]string {
	config := map[string]string{"type": "alias", "remote": folder, "mode": models.DriveModeShared}
	if shareEmail != "" {
		config["share_email"] = shareEmail
	}
	return config
}

func driveMode(stored map[string]string, settings Settings) string {
	if mode := firstNonEmpty(settings.Mode, stored["mode"]); mode != "" {
		return mode
	}
	if stored["type"] == "alias" {
		return models.DriveModeShared
	}
	return models.DriveModeCustom
}
