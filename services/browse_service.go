package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/storage"
	"github.com/gabofunebre/backuper/transfer"
	"github.com/gabofunebre/backuper/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BrowseListing is one directory level of a remote host being browsed.
type BrowseListing struct {
	CurrentPath string   `json:"current_path"`
	ParentPath  string   `json:"parent_path"`
	Directories []string `json:"directories"`
}

// BrowseSession ties a sequence of listing calls to the credentials that
// opened it. Editing any credential invalidates the session.
type BrowseSession struct {
	ID          string `json:"session"`
	Fingerprint string `json:"-"`
	CurrentPath string `json:"current_path"`
}

type BrowseServiceInterface interface {
	Connect(ctx context.Context, settings storage.Settings) (BrowseSession, BrowseListing, error)
	List(ctx context.Context, sessionID string, settings storage.Settings, path string) (BrowseListing, error)
}

// BrowseService lists directories on sftp hosts through throwaway tool
// entries, so a base path can be picked before the remote exists.
type BrowseService struct {
	tool transfer.Tool

	mu       sync.Mutex
	sessions map[string]BrowseSession
}

func NewBrowseService(tool transfer.Tool) *BrowseService {
	return &BrowseService{
		tool:     tool,
		sessions: make(map[string]BrowseSession),
	}
}

// Connect checks the credentials can list the host root and opens a
// session for subsequent navigation.
func (bs *BrowseService) Connect(ctx context.Context, settings storage.Settings) (BrowseSession, BrowseListing, error) {
	if err := validateBrowseSettings(settings); err != nil {
		return BrowseSession{}, BrowseListing{}, err
	}
	listing, err := bs.browse(ctx, settings, "/")
	if err != nil {
		return BrowseSession{}, BrowseListing{}, err
	}
	session := BrowseSession{
		ID:          uuid.NewString(),
		Fingerprint: sftpFingerprint(settings),
		CurrentPath: listing.CurrentPath,
	}
	bs.mu.Lock()
	bs.sessions[session.ID] = session
	bs.mu.Unlock()
	logrus.WithFields(logrus.Fields{"host": settings.Host, "session": session.ID}).Info("Browse session opened")
	return session, listing, nil
}

// List navigates an open session to path. The submitted credentials must
// still match the ones that opened the session.
func (bs *BrowseService) List(ctx context.Context, sessionID string, settings storage.Settings, path string) (BrowseListing, error) {
	bs.mu.Lock()
	session, ok := bs.sessions[sessionID]
	bs.mu.Unlock()
	if !ok {
		return BrowseListing{}, models.NewError(models.ErrInvalidSettings, "browse session expired, connect again")
	}
	if session.Fingerprint != sftpFingerprint(settings) {
		bs.mu.Lock()
		delete(bs.sessions, sessionID)
		bs.mu.Unlock()
		return BrowseListing{}, models.NewError(models.ErrInvalidSettings, "credentials changed, connect again")
	}
	listing, err := bs.browse(ctx, settings, path)
	if err != nil {
		return BrowseListing{}, err
	}
	session.CurrentPath = listing.CurrentPath
	bs.mu.Lock()
	bs.sessions[sessionID] = session
	bs.mu.Unlock()
	return listing, nil
}

// browse creates a throwaway sftp entry, lists one directory level and
// removes the entry again.
func (bs *BrowseService) browse(ctx context.Context, settings storage.Settings, path string) (BrowseListing, error) {
	obscured, err := bs.tool.Obscure(ctx, settings.Password)
	if err != nil {
		return BrowseListing{}, err
	}
	probe := "__probe__" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	params := map[string]string{
		"host": settings.Host,
		"user": settings.Username,
		"pass": obscured,
	}
	if settings.Port != "" {
		params["port"] = settings.Port
	}
	if err := bs.tool.CreateConfig(ctx, probe, "sftp", params); err != nil {
		return BrowseListing{}, err
	}
	defer func() {
		if err := bs.tool.DeleteConfig(ctx, probe); err != nil {
			logrus.Warnf("Could not remove browse probe %s: %v", probe, err)
		}
	}()

	current := utils.NormalizeRemotePath(path)
	directories, err := bs.tool.ListDirs(ctx, probe+":"+current)
	if err != nil {
		return BrowseListing{}, err
	}
	if directories == nil {
		directories = []string{}
	}
	return BrowseListing{
		CurrentPath: current,
		ParentPath:  utils.ParentRemotePath(current),
		Directories: directories,
	}, nil
}

func validateBrowseSettings(settings storage.Settings) error {
	if settings.Host == "" {
		return models.NewError(models.ErrInvalidSettings, "host is required")
	}
	if settings.Username == "" {
		return models.NewError(models.ErrInvalidSettings, "username is required")
	}
	if settings.Password == "" {
		return models.NewError(models.ErrInvalidSettings, "password is required")
	}
	return nil
}

// sftpFingerprint pins the connection credentials of a browse session.
func sftpFingerprint(settings storage.Settings) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		settings.Host, settings.Port, settings.Username, settings.Password,
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}
