package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/gabofunebre/backuper/storage"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Validation session states. A session only unlocks provisioning while it
// is in StatusSuccess with a fingerprint matching the submitted credentials.
const (
	StatusIdle    = "idle"
	StatusDirty   = "dirty"
	StatusSuccess = "success"
	StatusError   = "error"
)

// ValidationSession is the caller-owned state of one credential
// verification attempt. The fingerprint pins the exact credentials that
// passed; editing any of them makes the session dirty.
type ValidationSession struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Fingerprint string `json:"-"`
}

type ValidationServiceInterface interface {
	Test(ctx context.Context, sessionID string, settings storage.Settings) ValidationSession
	Touch(sessionID string, settings storage.Settings) ValidationSession
	Validated(sessionID string, settings storage.Settings) bool
}

// ValidationService probes drive credentials with a throwaway tool entry
// and tracks the per-attempt session state between HTTP calls.
type ValidationService struct {
	tool transfer.Tool

	mu       sync.Mutex
	sessions map[string]ValidationSession
}

func NewValidationService(tool transfer.Tool) *ValidationService {
	return &ValidationService{
		tool:     tool,
		sessions: make(map[string]ValidationSession),
	}
}

// Test verifies the credentials end to end: structural token check, then a
// throwaway drive entry that must serve a listing. The advanced session is
// returned and stored under its id.
func (vs *ValidationService) Test(ctx context.Context, sessionID string, settings storage.Settings) ValidationSession {
	session := vs.load(sessionID)
	if _, err := storage.ParseDriveToken(settings.Token); err != nil {
		return vs.fail(session, settings, err)
	}

	probe := "__validate__" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	params := map[string]string{"scope": "drive", "token": settings.Token}
	if settings.ClientID != "" {
		params["client_id"] = settings.ClientID
	}
	if settings.ClientSecret != "" {
		params["client_secret"] = settings.ClientSecret
	}
	if err := vs.tool.CreateConfig(ctx, probe, "drive", params); err != nil {
		return vs.fail(session, settings, err)
	}
	defer func() {
		if err := vs.tool.DeleteConfig(ctx, probe); err != nil {
			logrus.Warnf("Could not remove validation probe %s: %v", probe, err)
		}
	}()
	if err := vs.tool.CheckDir(ctx, probe+":"); err != nil {
		return vs.fail(session, settings, err)
	}

	session.Status = StatusSuccess
	session.Message = "credentials verified"
	session.Fingerprint = driveFingerprint(settings)
	vs.store(session)
	logrus.WithField("session", session.ID).Info("Drive credentials verified")
	return session
}

// Touch marks the session dirty when the submitted credentials differ from
// the ones that passed validation. The previous message survives so the UI
// can keep showing it until the next test.
func (vs *ValidationService) Touch(sessionID string, settings storage.Settings) ValidationSession {
	session := vs.load(sessionID)
	if session.Status == StatusSuccess && session.Fingerprint != driveFingerprint(settings) {
		session.Status = StatusDirty
		vs.store(session)
	}
	return session
}

// Validated reports whether sessionID currently vouches for exactly these
// credentials.
func (vs *ValidationService) Validated(sessionID string, settings storage.Settings) bool {
	vs.mu.Lock()
	session, ok := vs.sessions[sessionID]
	vs.mu.Unlock()
	return ok && session.Status == StatusSuccess && session.Fingerprint == driveFingerprint(settings)
}

func (vs *ValidationService) fail(session ValidationSession, settings storage.Settings, err error) ValidationSession {
	session.Status = StatusError
	session.Message = redactSecrets(err.Error(), settings)
	session.Fingerprint = ""
	vs.store(session)
	logrus.WithField("session", session.ID).Warn("Drive credential check failed: ", session.Message)
	return session
}

func (vs *ValidationService) load(sessionID string) ValidationSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if sessionID != "" {
		if session, ok := vs.sessions[sessionID]; ok {
			return session
		}
	}
	session := ValidationSession{ID: sessionID, Status: StatusIdle}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	return session
}

func (vs *ValidationService) store(session ValidationSession) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.sessions[session.ID] = session
}

// driveFingerprint pins the canonical credential fields. It must be
// deterministic so a byte-identical resubmission matches.
func driveFingerprint(settings storage.Settings) string {
	sum := sha256.Sum256([]byte(settings.Token + "\x00" + settings.ClientID + "\x00" + settings.ClientSecret))
	return hex.EncodeToString(sum[:])
}

// redactSecrets keeps credential material out of user-facing messages.
func redactSecrets(message string, settings storage.Settings) string {
	for _, secret := range []string{settings.Token, settings.ClientSecret, settings.Password} {
		if secret != "" {
			message = strings.ReplaceAll(message, secret, "[redacted]")
		}
	}
	return message
}
