package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gabofunebre/backuper/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exportApp serves the two-call backup protocol: capabilities plus a direct
// export stream of payload, declaring declaredSize and the real checksum.
func exportApp(t *testing.T, payload []byte, declaredSize int64) *httptest.Server {
	t.Helper()
	sum := sha256.Sum256(payload)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/backup/capabilities":
			fmt.Fprintf(w, `{"version":"v1","types":["db"],"est_size":%d}`, declaredSize)
		case "/backup/export":
			w.Header().Set("X-Checksum-SHA256", hex.EncodeToString(sum[:]))
			w.Header().Set("X-Size", strconv.FormatInt(declaredSize, 10))
			w.Header().Set("X-Format", "sql")
			w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
}

func backupFixture(t *testing.T, tool *fakeTool) (*BackupService, testRepos) {
	t.Helper()
	repos := newTestRepos(t)
	require.NoError(t, repos.remotes.Create(&models.Remote{Name: "dest", Type: "local", Route: "/srv/dest"}))
	service := NewBackupService(repos.apps, repos.remotes, repos.executions, NewAppClient(), tool, 10*time.Second, 2)
	return service, repos
}

func TestRunWritesOneArtifactAndRecordsSuccess(t *testing.T) {
	payload := []byte("orders-export-payload")
	server := exportApp(t, payload, int64(len(payload)))
	defer server.Close()
	tool := newFakeTool()
	service, _ := backupFixture(t, tool)
	app := models.App{Name: "orders", BaseURL: server.URL, Token: "tok", RemoteName: "dest"}

	execution := service.Run(context.Background(), app)

	require.Equal(t, models.OutcomeSuccess, execution.Outcome)
	assert.Equal(t, int64(len(payload)), execution.ArtifactSize)
	sum := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), execution.ArtifactChecksum)

	expected := fmt.Sprintf("orders_%s.sql", execution.StartedAt.UTC().Format(artifactTimeLayout))
	assert.Equal(t, expected, execution.ArtifactName)
	assert.Equal(t, payload, tool.written["/srv/dest/"+expected])
}

func TestRunFailsOnSizeMismatchAndRemovesPartialArtifact(t *testing.T) {
	payload := make([]byte, 900)
	server := exportApp(t, payload, 1024)
	defer server.Close()
	tool := newFakeTool()
	service, _ := backupFixture(t, tool)
	app := models.App{Name: "orders", BaseURL: server.URL, Token: "tok", RemoteName: "dest"}

	execution := service.Run(context.Background(), app)

	assert.Equal(t, string(models.ErrIntegrityMismatch), execution.Outcome)
	assert.Empty(t, execution.ArtifactName)
	assert.Empty(t, tool.written)
	assert.True(t, tool.called("delete"))
}

func TestRunFailsOnChecksumMismatch(t *testing.T) {
	payload := []byte("payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/backup/capabilities":
			io.WriteString(w, `{"version":"v1","types":["db"]}`)
		case "/backup/export":
			w.Header().Set("X-Checksum-SHA256", "deadbeef")
			w.Header().Set("X-Size", strconv.Itoa(len(payload)))
			w.Write(payload)
		}
	}))
	defer server.Close()
	tool := newFakeTool()
	service, _ := backupFixture(t, tool)
	app := models.App{Name: "orders", BaseURL: server.URL, Token: "tok", RemoteName: "dest"}

	execution := service.Run(context.Background(), app)

	assert.Equal(t, string(models.ErrIntegrityMismatch), execution.Outcome)
	assert.Empty(t, tool.written)
}

func TestRunRejectsOverlappingTriggerForSameApp(t *testing.T) {
	release := make(chan struct{})
	streaming := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/backup/capabilities":
			io.WriteString(w, `{"version":"v1","types":["db"]}`)
		case "/backup/export":
			w.Header().Set("X-Size", "5")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			streaming <- struct{}{}
			<-release
			io.WriteString(w, "bytes")
		}
	}))
	defer server.Close()
	tool := newFakeTool()
	service, _ := backupFixture(t, tool)
	app := models.App{Name: "orders", BaseURL: server.URL, Token: "tok", RemoteName: "dest"}

	first := make(chan models.JobExecution, 1)
	go func() { first <- service.Run(context.Background(), app) }()
	<-streaming

	second := service.Run(context.Background(), app)
	assert.Equal(t, string(models.ErrAlreadyRunning), second.Outcome)

	close(release)
	assert.Equal(t, models.OutcomeSuccess, (<-first).Outcome)
}

func TestRunRecordsUnsupportedVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"version":"v0","types":["db"]}`)
	}))
	defer server.Close()
	tool := newFakeTool()
	service, repos := backupFixture(t, tool)
	app := models.App{Name: "orders", BaseURL: server.URL, Token: "tok", RemoteName: "dest"}

	execution := service.Run(context.Background(), app)

	assert.Equal(t, string(models.ErrUnsupportedVersion), execution.Outcome)
	recorded, err := repos.executions.ListRecent("orders", 10)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, string(models.ErrUnsupportedVersion), recorded[0].Outcome)
}

func TestRunTimesOutOnStalledExport(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/backup/capabilities":
			io.WriteString(w, `{"version":"v1","types":["db"]}`)
		case "/backup/export":
			w.Header().Set("X-Size", "5")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			select {
			case <-stall:
			case <-r.Context().Done():
			}
		}
	}))
	defer server.Close()
	tool := newFakeTool()
	repos := newTestRepos(t)
	require.NoError(t, repos.remotes.Create(&models.Remote{Name: "dest", Type: "local", Route: "/srv/dest"}))
	service := NewBackupService(repos.apps, repos.remotes, repos.executions, NewAppClient(), tool, 200*time.Millisecond, 2)
	app := models.App{Name: "orders", BaseURL: server.URL, Token: "tok", RemoteName: "dest"}

	execution := service.Run(context.Background(), app)

	assert.Equal(t, string(models.ErrTimeout), execution.Outcome)
}

func TestParseArtifactTimeRoundTrip(t *testing.T) {
	started := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	name := artifactName("orders", started, "sql")

	ts, ok := parseArtifactTime("orders", name)
	require.True(t, ok)
	assert.True(t, ts.Equal(started))

	_, ok = parseArtifactTime("orders", "invoices_20260825T103000Z.sql")
	assert.False(t, ok)
	_, ok = parseArtifactTime("orders", "orders_notatimestamp.sql")
	assert.False(t, ok)
}
