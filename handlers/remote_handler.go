package handlers

import (
	"net/http"

	"github.com/gabofunebre/backuper/config"
	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/services"
	"github.com/gabofunebre/backuper/storage"

	"github.com/labstack/echo/v4"
)

// remotePayload is the request body for remote creation and updates.
// ValidationID references the credential-validation session that must vouch
// for drive custom credentials.
type remotePayload struct {
	Name         string           `json:"name"`
	Type         string           `json:"type"`
	Settings     storage.Settings `json:"settings"`
	ValidationID string           `json:"validation_id"`
}

type RemoteHandler struct {
	remotes services.RemoteServiceInterface
}

func NewRemoteHandler(remotes services.RemoteServiceInterface) *RemoteHandler {
	return &RemoteHandler{remotes: remotes}
}

func (h *RemoteHandler) List(c echo.Context) error {
	remotes, err := h.remotes.List()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, remotes)
}

func (h *RemoteHandler) Get(c echo.Context) error {
	remote, err := h.remotes.Get(c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, remote)
}

func (h *RemoteHandler) Create(c echo.Context) error {
	var payload remotePayload
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	remote, err := h.remotes.Create(c.Request().Context(), payload.Name, payload.Type, payload.Settings, payload.ValidationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, remote)
}

// Update edits or renames the remote at :name. A payload name different
// from the path parameter is a rename.
func (h *RemoteHandler) Update(c echo.Context) error {
	var payload remotePayload
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	remote, err := h.remotes.Update(c.Request().Context(), c.Param("name"), payload.Name, payload.Settings, payload.ValidationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, remote)
}

// Delete removes the remote definition. ?remove_files=true also purges the
// stored artifacts for backend types that keep them by default.
func (h *RemoteHandler) Delete(c echo.Context) error {
	removeFiles := c.QueryParam("remove_files") == "true"
	result, err := h.remotes.Delete(c.Request().Context(), c.Param("name"), removeFiles)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Options serves the per-type form options the provisioning UI needs
// before a remote exists: configured local base directories, the sftp
// credential requirement, the supported drive modes.
func (h *RemoteHandler) Options(c echo.Context) error {
	switch c.Param("type") {
	case models.RemoteTypeLocal:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"directories": config.LoadLocalDirectoryEntries(),
		})
	case models.RemoteTypeSftp:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"requires_credentials": true,
		})
	case models.RemoteTypeDrive:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"modes": []string{models.DriveModeShared, models.DriveModeCustom},
		})
	case models.RemoteTypeOneDrive:
		return models.NewError(models.ErrNotSupported, "onedrive remotes are not implemented")
	default:
		return models.Errorf(models.ErrInvalidSettings, "unknown remote type %q", c.Param("type"))
	}
}
