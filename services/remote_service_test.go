package services

import (
	"context"
	"testing"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/storage"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteFixture(t *testing.T, tool *fakeTool) (*RemoteService, testRepos) {
	t.Helper()
	repos := newTestRepos(t)
	backends := storage.NewBackends(tool, "gdrive")
	validator := NewValidationService(tool)
	return NewRemoteService(repos.remotes, repos.apps, backends, tool, validator), repos
}

func TestCreateLocalRemoteResolvesRouteAndEnsuresDirectory(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)

	remote, err := service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{Path: "/srv"}, "")

	require.NoError(t, err)
	assert.Equal(t, "/srv/backups", remote.Route)
	assert.True(t, tool.called("mkdir /srv/backups"))
	assert.Equal(t, "alias", tool.configs["backups"]["type"])

	persisted, err := service.Get("backups")
	require.NoError(t, err)
	assert.Equal(t, "/srv/backups", persisted.Route)
}

func TestCreateRejectsDuplicateNames(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)
	_, err := service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{Path: "/srv"}, "")
	require.NoError(t, err)

	_, err = service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{Path: "/mnt"}, "")

	assert.Equal(t, models.ErrInvalidSettings, models.KindOf(err))
}

func TestCreateValidatesSettingsBeforeAnyToolCall(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)

	_, err := service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{}, "")

	assert.Equal(t, models.ErrInvalidSettings, models.KindOf(err))
	assert.Empty(t, tool.calls)
}

func TestCreateOneDriveIsNotSupported(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)

	_, err := service.Create(context.Background(), "box", models.RemoteTypeOneDrive, storage.Settings{}, "")

	assert.Equal(t, models.ErrNotSupported, models.KindOf(err))
}

func TestCreateCustomDriveRequiresValidatedCredentials(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)
	settings := storage.Settings{Mode: models.DriveModeCustom, Token: `{"access_token":"abc"}`}

	_, err := service.Create(context.Background(), "cloud", models.RemoteTypeDrive, settings, "")

	assert.Equal(t, models.ErrUnvalidatedCredentials, models.KindOf(err))
}

func TestCreateCustomDriveAcceptsMatchingValidationSession(t *testing.T) {
	tool := newFakeTool()
	repos := newTestRepos(t)
	backends := storage.NewBackends(tool, "gdrive")
	validator := NewValidationService(tool)
	service := NewRemoteService(repos.remotes, repos.apps, backends, tool, validator)
	settings := storage.Settings{Mode: models.DriveModeCustom, Token: `{"access_token":"abc"}`}

	session := validator.Test(context.Background(), "", settings)
	require.Equal(t, StatusSuccess, session.Status)

	remote, err := service.Create(context.Background(), "cloud", models.RemoteTypeDrive, settings, session.ID)

	require.NoError(t, err)
	assert.Equal(t, "cloud:", remote.Route)
}

func TestUpdateRenameMovesExistingLocalFiles(t *testing.T) {
	tool := newFakeTool()
	service, repos := remoteFixture(t, tool)
	_, err := service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{Path: "/srv"}, "")
	require.NoError(t, err)
	require.NoError(t, repos.apps.Create(&models.App{
		Name: "orders", BaseURL: "http://orders", Token: "tok", RemoteName: "backups",
	}))
	tool.listings["/srv/backups"] = []transfer.Object{{Name: "orders_20260825T000000Z.sql", Size: 10}}

	updated, err := service.Update(context.Background(), "backups", "backups2", storage.Settings{Path: "/srv"}, "")

	require.NoError(t, err)
	assert.Equal(t, "/srv/backups2", updated.Route)
	assert.True(t, tool.called("moveto /srv/backups /srv/backups2"))
	assert.Empty(t, tool.listings["/srv/backups"])
	assert.Len(t, tool.listings["/srv/backups2"], 1)

	// Apps pointing at the old name follow the rename.
	app, err := repos.apps.FindByName("orders")
	require.NoError(t, err)
	assert.Equal(t, "backups2", app.RemoteName)

	_, err = service.Get("backups")
	assert.Equal(t, models.ErrNotFound, models.KindOf(err))
}

func TestUpdateRenameLeavesEmptyDirectoryBehind(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)
	_, err := service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{Path: "/srv"}, "")
	require.NoError(t, err)

	updated, err := service.Update(context.Background(), "backups", "archive", storage.Settings{Path: "/srv"}, "")

	require.NoError(t, err)
	assert.Equal(t, "/srv/archive", updated.Route)
	assert.False(t, tool.called("moveto /srv/backups /srv/archive"))
}

func TestUpdateRollsBackToolEntryOnFailure(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)
	_, err := service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{Path: "/srv"}, "")
	require.NoError(t, err)

	tool.fail["mkdir"] = models.NewError(models.ErrBackendUnavailable, "disk full")
	_, err = service.Update(context.Background(), "backups", "backups2", storage.Settings{Path: "/srv"}, "")

	assert.Equal(t, models.ErrBackendUnavailable, models.KindOf(err))
	// The original entry is restored and the record untouched.
	assert.Equal(t, "alias", tool.configs["backups"]["type"])
	remote, getErr := service.Get("backups")
	require.NoError(t, getErr)
	assert.Equal(t, "/srv/backups", remote.Route)
}

func TestDeleteLocalRemotePurgesDirectoryAndClearsAppReferences(t *testing.T) {
	tool := newFakeTool()
	service, repos := remoteFixture(t, tool)
	_, err := service.Create(context.Background(), "backups", models.RemoteTypeLocal, storage.Settings{Path: "/srv"}, "")
	require.NoError(t, err)
	require.NoError(t, repos.apps.Create(&models.App{
		Name: "orders", BaseURL: "http://orders", Token: "tok", RemoteName: "backups",
	}))

	result, err := service.Delete(context.Background(), "backups", false)

	require.NoError(t, err)
	assert.Equal(t, "/srv/backups", result.RemovedRoute)
	assert.True(t, tool.called("purge /srv/backups"))
	_, err = service.Get("backups")
	assert.Equal(t, models.ErrNotFound, models.KindOf(err))

	app, err := repos.apps.FindByName("orders")
	require.NoError(t, err)
	assert.Empty(t, app.RemoteName)
}

func TestRestorePersistedRecreatesMissingEntries(t *testing.T) {
	tool := newFakeTool()
	service, repos := remoteFixture(t, tool)
	remote := models.Remote{Name: "backups", Type: models.RemoteTypeLocal, Route: "/srv/backups"}
	remote.SetConfig(map[string]string{"type": "alias", "remote": "/srv/backups"})
	require.NoError(t, repos.remotes.Create(&remote))

	require.NoError(t, service.RestorePersisted(context.Background()))

	assert.Equal(t, "alias", tool.configs["backups"]["type"])
	assert.Equal(t, "/srv/backups", tool.configs["backups"]["remote"])
}

func TestReservedAndMalformedNamesAreRejected(t *testing.T) {
	tool := newFakeTool()
	service, _ := remoteFixture(t, tool)

	for _, name := range []string{"", "__snapshot", "bad name", ":colon"} {
		_, err := service.Create(context.Background(), name, models.RemoteTypeLocal, storage.Settings{Path: "/srv"}, "")
		assert.Equal(t, models.ErrInvalidSettings, models.KindOf(err), "name %q", name)
	}
}
