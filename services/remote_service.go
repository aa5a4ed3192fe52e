package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/repositories"
	"github.com/gabofunebre/backuper/storage"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// remoteNamePattern is what the transfer tool accepts as an entry name.
// Double underscore prefixes are reserved for internal snapshot and probe
// entries.
var remoteNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// DeleteResult reports a remote deletion. RemovedRoute is set when backend
// files were removed along with the configuration.
type DeleteResult struct {
	Name         string `json:"name"`
	RemovedRoute string `json:"removed_route,omitempty"`
}

type RemoteServiceInterface interface {
	List() ([]models.Remote, error)
	Get(name string) (models.Remote, error)
	Create(ctx context.Context, name, remoteType string, settings storage.Settings, validationID string) (models.Remote, error)
	Update(ctx context.Context, name, newName string, settings storage.Settings, validationID string) (models.Remote, error)
	Delete(ctx context.Context, name string, removeFiles bool) (DeleteResult, error)
	RestorePersisted(ctx context.Context) error
	EnsureSharedDrive(ctx context.Context, name, token, clientID, clientSecret string) error
}

// RemoteService owns the remote lifecycle. All tool-side work is delegated
// to the type's Backend; this service adds structural validation, the
// credential-validation gate, snapshot-based rollback for update/delete and
// the persisted Remote record. Operations on the same name serialize.
type RemoteService struct {
	remotes   repositories.RemoteRepository
	apps      repositories.AppRepository
	backends  storage.Backends
	tool      transfer.Tool
	validator ValidationServiceInterface

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRemoteService(
	remotes repositories.RemoteRepository,
	apps repositories.AppRepository,
	backends storage.Backends,
	tool transfer.Tool,
	validator ValidationServiceInterface,
) *RemoteService {
	return &RemoteService{
		remotes:   remotes,
		apps:      apps,
		backends:  backends,
		tool:      tool,
		validator: validator,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (rs *RemoteService) List() ([]models.Remote, error) {
	return rs.remotes.List()
}

func (rs *RemoteService) Get(name string) (models.Remote, error) {
	remote, err := rs.remotes.FindByName(name)
	if err != nil {
		return models.Remote{}, err
	}
	return *remote, nil
}

func (rs *RemoteService) Create(ctx context.Context, name, remoteType string, settings storage.Settings, validationID string) (models.Remote, error) {
	if err := validateRemoteName(name); err != nil {
		return models.Remote{}, err
	}
	unlock := rs.lock(name)
	defer unlock()

	if _, err := rs.remotes.FindByName(name); err == nil {
		return models.Remote{}, models.Errorf(models.ErrInvalidSettings, "a remote named %q already exists", name)
	}
	backend, err := rs.backends.For(remoteType)
	if err != nil {
		return models.Remote{}, err
	}
	if err := backend.Validate(settings); err != nil {
		return models.Remote{}, err
	}
	if err := rs.gateCredentials(remoteType, settings, validationID, true); err != nil {
		return models.Remote{}, err
	}

	provisioned, err := backend.Provision(ctx, name, settings)
	if err != nil {
		return models.Remote{}, err
	}
	remote := models.Remote{
		Name:     name,
		Type:     remoteType,
		Route:    provisioned.Route,
		ShareURL: provisioned.ShareURL,
	}
	remote.SetConfig(provisioned.Config)
	if err := rs.remotes.Create(&remote); err != nil {
		logrus.Errorf("Could not persist remote %s, rolling back backend state: %v", name, err)
		if _, removeErr := backend.Remove(ctx, remote, true); removeErr != nil {
			logrus.Errorf("Rollback of remote %s left backend state behind: %v", name, removeErr)
		}
		return models.Remote{}, fmt.Errorf("failed to persist remote: %w", err)
	}
	remoteOperationsTotal.WithLabelValues("create").Inc()
	logrus.WithFields(logrus.Fields{"remote": name, "type": remoteType, "route": remote.Route}).Info("Remote created")
	return remote, nil
}

// Update recreates the remote under possibly new name and settings. The
// current tool entry is snapshotted first; any failure restores it and
// leaves the persisted Remote untouched.
func (rs *RemoteService) Update(ctx context.Context, name, newName string, settings storage.Settings, validationID string) (models.Remote, error) {
	if newName == "" {
		newName = name
	}
	if err := validateRemoteName(newName); err != nil {
		return models.Remote{}, err
	}
	unlock := rs.lockPair(name, newName)
	defer unlock()

	remote, err := rs.remotes.FindByName(name)
	if err != nil {
		return models.Remote{}, err
	}
	if newName != name {
		if _, err := rs.remotes.FindByName(newName); err == nil {
			return models.Remote{}, models.Errorf(models.ErrInvalidSettings, "a remote named %q already exists", newName)
		}
	}
	backend, err := rs.backends.For(remote.Type)
	if err != nil {
		return models.Remote{}, err
	}
	if settings.Token != "" {
		if err := rs.gateCredentials(remote.Type, settings, validationID, false); err != nil {
			return models.Remote{}, err
		}
	}

	snapshot, err := rs.snapshotEntry(ctx, name, "__backup__")
	if err != nil {
		return models.Remote{}, err
	}
	provisioned, err := backend.Rename(ctx, *remote, newName, settings)
	if err != nil {
		rs.restoreSnapshot(ctx, snapshot, name, newName)
		return models.Remote{}, err
	}
	rs.dropSnapshot(ctx, snapshot)

	updated := *remote
	updated.Name = newName
	updated.Route = provisioned.Route
	updated.ShareURL = provisioned.ShareURL
	updated.SetConfig(provisioned.Config)
	if err := rs.remotes.Update(&updated); err != nil {
		return models.Remote{}, fmt.Errorf("failed to persist remote update: %w", err)
	}
	if newName != name {
		if err := rs.apps.RenameRemote(name, newName); err != nil {
			logrus.Errorf("Could not repoint apps from %s to %s: %v", name, newName, err)
		}
	}
	remoteOperationsTotal.WithLabelValues("update").Inc()
	logrus.WithFields(logrus.Fields{"remote": newName, "route": updated.Route}).Info("Remote updated")
	return updated, nil
}

// Delete tears down the backend state behind a snapshot so a failed
// cleanup can roll back, then removes the record and clears app references.
func (rs *RemoteService) Delete(ctx context.Context, name string, removeFiles bool) (DeleteResult, error) {
	unlock := rs.lock(name)
	defer unlock()

	remote, err := rs.remotes.FindByName(name)
	if err != nil {
		return DeleteResult{}, err
	}
	backend, err := rs.backends.For(remote.Type)
	if err != nil {
		return DeleteResult{}, err
	}

	snapshot, err := rs.snapshotEntry(ctx, name, "__delete__")
	if err != nil {
		return DeleteResult{}, err
	}
	removedRoute, err := backend.Remove(ctx, *remote, removeFiles)
	if err != nil {
		rs.restoreSnapshot(ctx, snapshot, name, name)
		return DeleteResult{}, err
	}
	rs.dropSnapshot(ctx, snapshot)

	if err := rs.remotes.Delete(name); err != nil {
		return DeleteResult{}, fmt.Errorf("failed to delete remote record: %w", err)
	}
	if err := rs.apps.ClearRemote(name); err != nil {
		logrus.Errorf("Could not clear app references to %s: %v", name, err)
	}
	remoteOperationsTotal.WithLabelValues("delete").Inc()
	logrus.WithFields(logrus.Fields{"remote": name, "removed_route": removedRoute}).Info("Remote deleted")
	return DeleteResult{Name: name, RemovedRoute: removedRoute}, nil
}

// RestorePersisted recreates tool entries for every persisted remote that
// is missing from the tool configuration, typically after the config file
// was lost or the service moved hosts. Per-remote failures are logged and
// skipped.
func (rs *RemoteService) RestorePersisted(ctx context.Context) error {
	remotes, err := rs.remotes.List()
	if err != nil {
		return fmt.Errorf("failed to list persisted remotes: %w", err)
	}
	existing, err := rs.tool.ListRemotes(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}
	for _, remote := range remotes {
		if present[remote.Name] {
			continue
		}
		entry := remote.DecodeConfig()
		entryType := entry["type"]
		if entryType == "" {
			logrus.Warnf("Remote %s has no stored configuration, skipping restore", remote.Name)
			continue
		}
		if err := rs.tool.CreateConfig(ctx, remote.Name, entryType, entryParams(entry)); err != nil {
			logrus.Errorf("Could not restore tool entry for remote %s: %v", remote.Name, err)
			continue
		}
		logrus.WithFields(logrus.Fields{"remote": remote.Name, "type": remote.Type}).Info("Restored tool entry")
	}
	return nil
}

// EnsureSharedDrive creates the shared drive account entry at startup when
// it is configured but absent, so shared drive remotes work out of the box.
func (rs *RemoteService) EnsureSharedDrive(ctx context.Context, name, token, clientID, clientSecret string) error {
	if name == "" || token == "" {
		return nil
	}
	existing, err := rs.tool.ListRemotes(ctx)
	if err != nil {
		return err
	}
	for _, entry := range existing {
		if entry == name {
			return nil
		}
	}
	params := map[string]string{"scope": "drive", "token": token}
	if clientID != "" {
		params["client_id"] = clientID
	}
	if clientSecret != "" {
		params["client_secret"] = clientSecret
	}
	if err := rs.tool.CreateConfig(ctx, name, "drive", params); err != nil {
		return err
	}
	logrus.Infof("Created shared drive entry %s", name)
	return nil
}

type snapshotEntry struct {
	alias  string
	typ    string
	params map[string]string
}

// snapshotEntry copies the current tool entry for name under a disposable
// alias. Remotes without a tool entry produce an empty snapshot.
func (rs *RemoteService) snapshotEntry(ctx context.Context, name, prefix string) (snapshotEntry, error) {
	dump, err := rs.tool.DumpConfig(ctx)
	if err != nil {
		return snapshotEntry{}, err
	}
	entry, ok := dump[name]
	if !ok || entry["type"] == "" {
		return snapshotEntry{}, nil
	}
	snapshot := snapshotEntry{
		alias:  prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		typ:    entry["type"],
		params: entryParams(entry),
	}
	if err := rs.tool.CreateConfig(ctx, snapshot.alias, snapshot.typ, snapshot.params); err != nil {
		return snapshotEntry{}, fmt.Errorf("failed to snapshot tool entry for %s: %w", name, err)
	}
	return snapshot, nil
}

// restoreSnapshot puts the original entry back after a failed operation and
// clears whatever partial entries the operation left behind.
func (rs *RemoteService) restoreSnapshot(ctx context.Context, snapshot snapshotEntry, name, newName string) {
	if snapshot.alias == "" {
		return
	}
	if newName != name {
		if err := rs.tool.DeleteConfig(ctx, newName); err != nil {
			logrus.Debugf("No partial entry %s to clear: %v", newName, err)
		}
	}
	if err := rs.tool.DeleteConfig(ctx, name); err != nil {
		logrus.Debugf("No partial entry %s to clear: %v", name, err)
	}
	if err := rs.tool.CreateConfig(ctx, name, snapshot.typ, snapshot.params); err != nil {
		logrus.Errorf("Could not restore tool entry %s from snapshot %s: %v", name, snapshot.alias, err)
		return
	}
	rs.dropSnapshot(ctx, snapshot)
	logrus.Warnf("Restored tool entry %s after a failed operation", name)
}

func (rs *RemoteService) dropSnapshot(ctx context.Context, snapshot snapshotEntry) {
	if snapshot.alias == "" {
		return
	}
	if err := rs.tool.DeleteConfig(ctx, snapshot.alias); err != nil {
		logrus.Warnf("Could not remove snapshot entry %s: %v", snapshot.alias, err)
	}
}

// gateCredentials enforces the validation session requirement for
// credential gated types. Only custom drive remotes are gated today.
func (rs *RemoteService) gateCredentials(remoteType string, settings storage.Settings, validationID string, create bool) error {
	if remoteType != models.RemoteTypeDrive {
		return nil
	}
	if create && settings.Mode != models.DriveModeCustom {
		return nil
	}
	if !create && settings.Mode == models.DriveModeShared {
		return nil
	}
	if rs.validator.Validated(validationID, settings) {
		return nil
	}
	return models.NewError(models.ErrUnvalidatedCredentials, "drive credentials must pass validation before they can be used")
}

func (rs *RemoteService) lock(name string) func() {
	rs.mu.Lock()
	lock, ok := rs.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		rs.locks[name] = lock
	}
	rs.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// lockPair takes both names in a stable order so concurrent renames cannot
// deadlock.
func (rs *RemoteService) lockPair(a, b string) func() {
	if a == b {
		return rs.lock(a)
	}
	names := []string{a, b}
	sort.Strings(names)
	first := rs.lock(names[0])
	second := rs.lock(names[1])
	return func() {
		second()
		first()
	}
}

func validateRemoteName(name string) error {
	if name == "" {
		return models.NewError(models.ErrInvalidSettings, "name is required")
	}
	if strings.HasPrefix(name, "__") {
		return models.NewError(models.ErrInvalidSettings, "names starting with __ are reserved")
	}
	if !remoteNamePattern.MatchString(name) {
		return models.Errorf(models.ErrInvalidSettings, "%q is not a usable remote name", name)
	}
	return nil
}

// entryParams strips the keys that belong to the persisted record rather
// than the tool entry itself.
func entryParams(entry map[string]string) map[string]string {
	params := make(map[string]string, len(entry))
	for key, value := range entry {
		switch key {
		case "type", "mode", "share_email", "base_path":
			continue
		}
		params[key] = value
	}
	return params
}
