package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
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

func testApp(server *httptest.Server) models.App {
	return models.App{Name: "contab", BaseURL: server.URL, Token: "s3cret"}
}

func capabilitiesPayload(version string) string {
	return fmt.Sprintf(`{"version":%q,"types":["db"],"est_seconds":4,"est_size":1024}`, version)
}

func TestCapabilitiesSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/backup/capabilities", r.URL.Path)
		io.WriteString(w, capabilitiesPayload("v1"))
	}))
	defer server.Close()

	caps, err := NewAppClient().Capabilities(context.Background(), testApp(server))

	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, "v1", caps.Version)
	assert.Equal(t, []string{"db"}, caps.Types)
	assert.Equal(t, int64(1024), caps.EstSize)
}

func TestCapabilitiesRejectsOtherVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, capabilitiesPayload("v2"))
	}))
	defer server.Close()

	_, err := NewAppClient().Capabilities(context.Background(), testApp(server))

	assert.Equal(t, models.ErrUnsupportedVersion, models.KindOf(err))
}

func TestCapabilitiesMapsAuthRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewAppClient().Capabilities(context.Background(), testApp(server))

	assert.Equal(t, models.ErrAuthRejected, models.KindOf(err))
}

func TestCapabilitiesMapsConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := NewAppClient().Capabilities(context.Background(), testApp(server))

	assert.Equal(t, models.ErrUnreachable, models.KindOf(err))
}

func TestExportDirectStream(t *testing.T) {
	payload := []byte("backup-payload-contents")
	sum := sha256.Sum256(payload)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/backup/export", r.URL.Path)
		w.Header().Set("X-Checksum-SHA256", hex.EncodeToString(sum[:]))
		w.Header().Set("X-Size", strconv.Itoa(len(payload)))
		w.Header().Set("X-Format", "TAR.GZ")
		w.Write(payload)
	}))
	defer server.Close()

	export, err := NewAppClient().Export(context.Background(), testApp(server))

	require.NoError(t, err)
	defer export.Body.Close()
	body, err := io.ReadAll(export.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, hex.EncodeToString(sum[:]), export.Checksum)
	assert.Equal(t, int64(len(payload)), export.Size)
	assert.Equal(t, "tar.gz", export.Format)
}

func TestExportDefaultsWhenHeadersAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data")
	}))
	defer server.Close()

	export, err := NewAppClient().Export(context.Background(), testApp(server))

	require.NoError(t, err)
	defer export.Body.Close()
	assert.Empty(t, export.Checksum)
	assert.Equal(t, int64(-1), export.Size)
	assert.Equal(t, "bin", export.Format)
}

func TestExportAsyncPollsUntilReady(t *testing.T) {
	payload := []byte("deferred-export")
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/backup/export", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"job_id":       "j1",
			"status_url":   "/backup/export/j1/status",
			"download_url": "/backup/export/j1/download",
		})
	})
	mux.HandleFunc("/backup/export/j1/status", func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := "pending"
		if polls >= 3 {
			status = "ready"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("/backup/export/j1/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		w.Header().Set("X-Size", strconv.Itoa(len(payload)))
		w.Write(payload)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewAppClient()
	client.pollInterval = 5 * time.Millisecond
	export, err := client.Export(context.Background(), testApp(server))

	require.NoError(t, err)
	defer export.Body.Close()
	body, _ := io.ReadAll(export.Body)
	assert.Equal(t, payload, body)
	assert.GreaterOrEqual(t, polls, 3)
}

func TestExportAsyncErrorStatusFailsTheJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/backup/export", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"job_id":       "j2",
			"status_url":   "/status",
			"download_url": "/download",
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "detail": "dump crashed"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewAppClient()
	client.pollInterval = 5 * time.Millisecond
	_, err := client.Export(context.Background(), testApp(server))

	require.Error(t, err)
	assert.Equal(t, models.ErrUnreachable, models.KindOf(err))
	assert.Contains(t, err.Error(), "dump crashed")
}

func TestExportAsyncHonorsContextDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/backup/export", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"job_id":       "j3",
			"status_url":   "/status",
			"download_url": "/download",
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	client := NewAppClient()
	client.pollInterval = 5 * time.Millisecond
	_, err := client.Export(ctx, testApp(server))

	assert.Equal(t, models.ErrTimeout, models.KindOf(err))
}
