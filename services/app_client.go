package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabofunebre/backuper/models"

	"github.com/sirupsen/logrus"
)

// Capabilities is the handshake payload every registered app serves on
// GET /backup/capabilities. Estimates are optional hints.
type Capabilities struct {
	Version    string   `json:"version"`
	Types      []string `json:"types"`
	EstSeconds int      `json:"est_seconds"`
	EstSize    int64    `json:"est_size"`
}

// Export is an open export stream plus the integrity declarations the app
// sent along. Size is -1 when the app declared none; Checksum is empty when
// undeclared. The caller owns Body.
type Export struct {
	Body     io.ReadCloser
	Checksum string
	Size     int64
	Format   string
}

type asyncExport struct {
	JobID       string `json:"job_id"`
	StatusURL   string `json:"status_url"`
	DownloadURL string `json:"download_url"`
}

type exportStatus struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// AppClient talks the fixed backup protocol to registered apps.
type AppClient struct {
	httpClient   *http.Client
	pollInterval time.Duration
}

func NewAppClient() *AppClient {
	return &AppClient{
		httpClient:   &http.Client{},
		pollInterval: 2 * time.Second,
	}
}

// Capabilities negotiates the protocol with the app. Only version v1 is
// spoken.
func (ac *AppClient) Capabilities(ctx context.Context, app models.App) (Capabilities, error) {
	resp, err := ac.do(ctx, app, http.MethodGet, ac.endpoint(app, "/backup/capabilities"))
	if err != nil {
		return Capabilities{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "capabilities"); err != nil {
		return Capabilities{}, err
	}
	var caps Capabilities
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		return Capabilities{}, models.WrapError(models.ErrUnreachable, "app sent an invalid capabilities payload", err)
	}
	if caps.Version != "v1" {
		return Capabilities{}, models.Errorf(models.ErrUnsupportedVersion, "app speaks backup protocol %q, only v1 is supported", caps.Version)
	}
	return caps, nil
}

// Export starts an export and returns the open stream. Apps may answer 202
// with a job reference; in that case the status URL is polled until the
// export is ready and the stream is fetched from the download URL.
func (ac *AppClient) Export(ctx context.Context, app models.App) (*Export, error) {
	resp, err := ac.do(ctx, app, http.MethodPost, ac.endpoint(app, "/backup/export"))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusAccepted {
		var async asyncExport
		decodeErr := json.NewDecoder(resp.Body).Decode(&async)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, models.WrapError(models.ErrUnreachable, "app sent an invalid async export payload", decodeErr)
		}
		return ac.awaitAsyncExport(ctx, app, async)
	}
	if err := checkStatus(resp, "export"); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return exportFromResponse(resp), nil
}

func (ac *AppClient) awaitAsyncExport(ctx context.Context, app models.App, async asyncExport) (*Export, error) {
	logrus.WithFields(logrus.Fields{"app": app.Name, "job_id": async.JobID}).Info("Export deferred, polling for readiness")
	statusURL, err := ac.resolve(app, async.StatusURL)
	if err != nil {
		return nil, err
	}
	downloadURL, err := ac.resolve(app, async.DownloadURL)
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(ac.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, models.WrapError(models.ErrTimeout, "export did not become ready in time", ctx.Err())
		case <-ticker.C:
		}
		status, err := ac.exportStatus(ctx, app, statusURL)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "ready":
			return ac.download(ctx, app, downloadURL)
		case "error":
			detail := status.Detail
			if detail == "" {
				detail = "app reported the export failed"
			}
			return nil, models.NewError(models.ErrUnreachable, "export failed: "+detail)
		}
	}
}

func (ac *AppClient) exportStatus(ctx context.Context, app models.App, statusURL string) (exportStatus, error) {
	resp, err := ac.do(ctx, app, http.MethodGet, statusURL)
	if err != nil {
		return exportStatus{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "export status"); err != nil {
		return exportStatus{}, err
	}
	var status exportStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return exportStatus{}, models.WrapError(models.ErrUnreachable, "app sent an invalid export status payload", err)
	}
	return status, nil
}

func (ac *AppClient) download(ctx context.Context, app models.App, downloadURL string) (*Export, error) {
	resp, err := ac.do(ctx, app, http.MethodGet, downloadURL)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, "export download"); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return exportFromResponse(resp), nil
}

func (ac *AppClient) do(ctx context.Context, app models.App, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, models.WrapError(models.ErrInvalidSettings, "app URL is not usable", err)
	}
	req.Header.Set("Authorization", "Bearer "+app.Token)
	resp, err := ac.httpClient.Do(req)
	if err != nil {
		return nil, models.WrapError(models.ErrUnreachable, fmt.Sprintf("app %s is unreachable", app.Name), err)
	}
	return resp, nil
}

func (ac *AppClient) endpoint(app models.App, path string) string {
	return strings.TrimRight(app.BaseURL, "/") + path
}

// resolve turns a possibly relative URL from the app into an absolute one
// against its base URL.
func (ac *AppClient) resolve(app models.App, ref string) (string, error) {
	if ref == "" {
		return "", models.NewError(models.ErrUnreachable, "app sent an async export without a URL")
	}
	base, err := url.Parse(strings.TrimRight(app.BaseURL, "/") + "/")
	if err != nil {
		return "", models.WrapError(models.ErrInvalidSettings, "app URL is not usable", err)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", models.WrapError(models.ErrUnreachable, "app sent an unusable export URL", err)
	}
	return base.ResolveReference(parsed).String(), nil
}

func checkStatus(resp *http.Response, operation string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.NewError(models.ErrAuthRejected, "app rejected the backup token")
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return models.Errorf(models.ErrUnreachable, "%s returned status %d", operation, resp.StatusCode)
	}
}

func exportFromResponse(resp *http.Response) *Export {
	export := &Export{
		Body:     resp.Body,
		Checksum: strings.ToLower(strings.TrimSpace(resp.Header.Get("X-Checksum-SHA256"))),
		Size:     -1,
		Format:   "bin",
	}
	if raw := strings.TrimSpace(resp.Header.Get("X-Size")); raw != "" {
		if size, err := strconv.ParseInt(raw, 10, 64); err == nil && size >= 0 {
			export.Size = size
		}
	}
	if format := normalizeFormat(resp.Header.Get("X-Format")); format != "" {
		export.Format = format
	}
	return export
}

func normalizeFormat(raw string) string {
	format := strings.ToLower(strings.TrimSpace(raw))
	format = strings.TrimPrefix(format, ".")
	for _, r := range format {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '.' {
			return ""
		}
	}
	return format
}
