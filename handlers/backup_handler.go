package handlers

import (
	"context"
	"net/http"

	"github.com/gabofunebre/backuper/services"

	"github.com/labstack/echo/v4"
)

type BackupHandler struct {
	backups   services.BackupServiceInterface
	retention services.RetentionServiceInterface
}

func NewBackupHandler(backups services.BackupServiceInterface, retention services.RetentionServiceInterface) *BackupHandler {
	return &BackupHandler{backups: backups, retention: retention}
}

// Run triggers a backup for the app. The default is synchronous and returns
// the finished JobExecution; ?wait=false fires the run in the background and
// answers 202 immediately. The run's own deadline bounds it either way.
func (h *BackupHandler) Run(c echo.Context) error {
	name := c.Param("app")
	if c.QueryParam("wait") == "false" {
		go h.backups.RunByName(context.Background(), name)
		return c.JSON(http.StatusAccepted, map[string]interface{}{"status": "started", "app": name})
	}
	execution, err := h.backups.RunByName(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, execution)
}

// Retention runs the retention sweep for the app and reports what it kept
// and deleted.
func (h *BackupHandler) Retention(c echo.Context) error {
	report, err := h.retention.EnforceByName(c.Request().Context(), c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
