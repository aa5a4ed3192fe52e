package routes

import (
	"net/http"

	"github.com/gabofunebre/backuper/handlers"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes initializes all API routes.
func RegisterRoutes(
	e *echo.Echo,
	apps *handlers.AppHandler,
	backups *handlers.BackupHandler,
	remotes *handlers.RemoteHandler,
	sessions *handlers.SessionHandler,
) {
	api := e.Group("/api")

	api.GET("/apps", apps.List)
	api.POST("/apps", apps.Create)
	api.GET("/apps/:name", apps.Get)
	api.PUT("/apps/:name", apps.Update)
	api.DELETE("/apps/:name", apps.Delete)
	api.GET("/executions", apps.Executions)

	api.POST("/backups/:app", backups.Run)
	api.POST("/backups/:app/retention", backups.Retention)

	api.GET("/remotes", remotes.List)
	api.POST("/remotes", remotes.Create)
	api.GET("/remotes/options/:type", remotes.Options)
	api.GET("/remotes/:name", remotes.Get)
	api.PUT("/remotes/:name", remotes.Update)
	api.DELETE("/remotes/:name", remotes.Delete)

	api.POST("/remotes/sftp/browse", sessions.Browse)
	api.POST("/remotes/drive/validate", sessions.TestCredentials)
	api.POST("/remotes/drive/validate/touch", sessions.TouchCredentials)
	api.POST("/remotes/drive/authorize", sessions.AuthorizeBegin)
	api.GET("/remotes/drive/authorize/:id", sessions.AuthorizeStatus)
	api.POST("/remotes/drive/authorize/:id", sessions.AuthorizeComplete)
	api.DELETE("/remotes/drive/authorize/:id", sessions.AuthorizeCancel)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
