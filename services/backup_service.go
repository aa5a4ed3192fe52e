package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/repositories"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// artifactTimeLayout is embedded in every artifact filename and parsed back
// by the retention sweep. Timestamps are always UTC.
const artifactTimeLayout = "20060102T150405Z"

type BackupServiceInterface interface {
	Run(ctx context.Context, app models.App) models.JobExecution
	RunByName(ctx context.Context, name string) (models.JobExecution, error)
}

// BackupService drives one backup run end to end: capability negotiation,
// export streaming into the transfer tool, integrity verification and the
// JobExecution record. Every failure is recovered into the execution
// outcome; Run never panics or returns an error.
type BackupService struct {
	apps       repositories.AppRepository
	remotes    repositories.RemoteRepository
	executions repositories.ExecutionRepository
	client     *AppClient
	tool       transfer.Tool
	timeout    time.Duration

	pool *semaphore.Weighted

	mu      sync.Mutex
	running map[string]*semaphore.Weighted
}

func NewBackupService(
	apps repositories.AppRepository,
	remotes repositories.RemoteRepository,
	executions repositories.ExecutionRepository,
	client *AppClient,
	tool transfer.Tool,
	timeout time.Duration,
	maxConcurrent int,
) *BackupService {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BackupService{
		apps:       apps,
		remotes:    remotes,
		executions: executions,
		client:     client,
		tool:       tool,
		timeout:    timeout,
		pool:       semaphore.NewWeighted(int64(maxConcurrent)),
		running:    make(map[string]*semaphore.Weighted),
	}
}

// RunByName resolves the app and runs its backup.
func (bs *BackupService) RunByName(ctx context.Context, name string) (models.JobExecution, error) {
	app, err := bs.apps.FindByName(name)
	if err != nil {
		return models.JobExecution{}, err
	}
	return bs.Run(ctx, *app), nil
}

// Run executes one backup for app. A run already in flight for the same app
// makes this trigger fail immediately with AlreadyRunning; triggers are
// never queued behind each other.
func (bs *BackupService) Run(ctx context.Context, app models.App) models.JobExecution {
	execution := models.JobExecution{AppName: app.Name, StartedAt: time.Now().UTC()}

	gate := bs.gate(app.Name)
	if !gate.TryAcquire(1) {
		execution.FinishedAt = time.Now().UTC()
		execution.Outcome = string(models.ErrAlreadyRunning)
		execution.Detail = "a backup for this app is already running"
		bs.record(&execution)
		return execution
	}
	defer gate.Release(1)

	if err := bs.pool.Acquire(ctx, 1); err != nil {
		execution.FinishedAt = time.Now().UTC()
		execution.Outcome = string(models.ErrTimeout)
		execution.Detail = "backup slot never became available: " + err.Error()
		bs.record(&execution)
		return execution
	}
	defer bs.pool.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, bs.timeout)
	defer cancel()

	logrus.WithFields(logrus.Fields{"app": app.Name, "remote": app.RemoteName}).Info("Starting backup run")
	err := bs.execute(runCtx, app, &execution)
	execution.FinishedAt = time.Now().UTC()
	if err != nil {
		kind := models.KindOf(err)
		if runCtx.Err() == context.DeadlineExceeded {
			kind = models.ErrTimeout
			err = models.WrapError(models.ErrTimeout, fmt.Sprintf("backup exceeded the %s deadline", bs.timeout), err)
		} else if kind == "" {
			kind = models.ErrBackendUnavailable
		}
		execution.Outcome = string(kind)
		execution.Detail = err.Error()
		backupsTotal.WithLabelValues(execution.Outcome).Inc()
		logrus.WithFields(logrus.Fields{"app": app.Name, "outcome": execution.Outcome}).Error("Backup run failed: ", err)
	} else {
		execution.Outcome = models.OutcomeSuccess
		backupsTotal.WithLabelValues(models.OutcomeSuccess).Inc()
		backupBytesTotal.Add(float64(execution.ArtifactSize))
		logrus.WithFields(logrus.Fields{
			"app":      app.Name,
			"artifact": execution.ArtifactName,
			"bytes":    execution.ArtifactSize,
		}).Info("Backup run finished")
	}
	bs.record(&execution)
	return execution
}

func (bs *BackupService) execute(ctx context.Context, app models.App, execution *models.JobExecution) error {
	if app.RemoteName == "" {
		return models.NewError(models.ErrInvalidSettings, "app has no remote assigned")
	}
	remote, err := bs.remotes.FindByName(app.RemoteName)
	if err != nil {
		return models.WrapError(models.ErrInvalidSettings, fmt.Sprintf("assigned remote %q is gone", app.RemoteName), err)
	}

	caps, err := bs.client.Capabilities(ctx, app)
	if err != nil {
		return err
	}
	if caps.EstSeconds > 0 || caps.EstSize > 0 {
		logrus.WithFields(logrus.Fields{
			"app":         app.Name,
			"est_seconds": caps.EstSeconds,
			"est_size":    caps.EstSize,
		}).Debug("App announced export estimates")
	}

	export, err := bs.client.Export(ctx, app)
	if err != nil {
		return err
	}
	defer export.Body.Close()

	name := artifactName(app.Name, execution.StartedAt, export.Format)
	target := transfer.JoinTarget(remote.Route, name)
	hasher := sha256.New()
	written, err := bs.tool.WriteStream(ctx, target, io.TeeReader(export.Body, hasher))
	if err != nil {
		bs.discardArtifact(remote.Route, name)
		return err
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	if export.Size >= 0 && written != export.Size {
		bs.discardArtifact(remote.Route, name)
		return models.Errorf(models.ErrIntegrityMismatch, "app declared %d bytes but %d arrived", export.Size, written)
	}
	if export.Checksum != "" && checksum != export.Checksum {
		bs.discardArtifact(remote.Route, name)
		return models.Errorf(models.ErrIntegrityMismatch, "checksum mismatch: declared %s, computed %s", export.Checksum, checksum)
	}

	execution.ArtifactName = name
	execution.ArtifactSize = written
	execution.ArtifactChecksum = checksum
	return nil
}

// discardArtifact removes a partial or failed upload. It runs on a fresh
// context because the run's own context may already be dead.
func (bs *BackupService) discardArtifact(route, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bs.tool.Delete(ctx, route, name); err != nil {
		logrus.WithFields(logrus.Fields{"route": route, "artifact": name}).
			Warn("Could not remove partial artifact: ", err)
	}
}

func (bs *BackupService) record(execution *models.JobExecution) {
	if err := bs.executions.Record(execution); err != nil {
		logrus.Error("Could not record job execution: ", err)
	}
}

func (bs *BackupService) gate(appName string) *semaphore.Weighted {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	gate, ok := bs.running[appName]
	if !ok {
		gate = semaphore.NewWeighted(1)
		bs.running[appName] = gate
	}
	return gate
}

func artifactName(appName string, startedAt time.Time, format string) string {
	return fmt.Sprintf("%s_%s.%s", appName, startedAt.UTC().Format(artifactTimeLayout), format)
}

// parseArtifactTime extracts the embedded timestamp from an artifact name
// produced by artifactName. Foreign names report false.
func parseArtifactTime(appName, objectName string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(objectName, appName+"_")
	if !ok {
		return time.Time{}, false
	}
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	ts, err := time.Parse(artifactTimeLayout, rest)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}
