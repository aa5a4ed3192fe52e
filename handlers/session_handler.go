package handlers

import (
	"net/http"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/services"
	"github.com/gabofunebre/backuper/storage"

	"github.com/labstack/echo/v4"
)

// sessionPayload carries the credentials under test or browse plus the
// session the caller is continuing, if any.
type sessionPayload struct {
	Session  string           `json:"session"`
	Settings storage.Settings `json:"settings"`
	Path     string           `json:"path"`
}

// SessionHandler serves the pre-provisioning workflows: credential
// validation, sftp browsing and the interactive drive authorization.
type SessionHandler struct {
	validator  services.ValidationServiceInterface
	browser    services.BrowseServiceInterface
	authorizer services.AuthorizeServiceInterface
}

func NewSessionHandler(
	validator services.ValidationServiceInterface,
	browser services.BrowseServiceInterface,
	authorizer services.AuthorizeServiceInterface,
) *SessionHandler {
	return &SessionHandler{validator: validator, browser: browser, authorizer: authorizer}
}

// TestCredentials probes the submitted drive credentials and returns the
// advanced validation session.
func (h *SessionHandler) TestCredentials(c echo.Context) error {
	var payload sessionPayload
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	session := h.validator.Test(c.Request().Context(), payload.Session, payload.Settings)
	return c.JSON(http.StatusOK, session)
}

// TouchCredentials reports the session state for the currently entered
// credentials, marking it dirty when they no longer match the validated set.
func (h *SessionHandler) TouchCredentials(c echo.Context) error {
	var payload sessionPayload
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	session := h.validator.Touch(payload.Session, payload.Settings)
	return c.JSON(http.StatusOK, session)
}

// Browse serves sftp directory navigation. Without a session token it
// verifies the credentials against the host root and opens a session; with
// one it navigates the open session to the requested path.
func (h *SessionHandler) Browse(c echo.Context) error {
	var payload sessionPayload
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	if payload.Session == "" {
		session, listing, err := h.browser.Connect(c.Request().Context(), payload.Settings)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"session": session.ID,
			"listing": listing,
		})
	}
	listing, err := h.browser.List(c.Request().Context(), payload.Session, payload.Settings, payload.Path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session": payload.Session,
		"listing": listing,
	})
}

// AuthorizeBegin starts the interactive drive authorization and returns the
// URL the user must visit plus the session id for the code submission.
func (h *SessionHandler) AuthorizeBegin(c echo.Context) error {
	session, err := h.authorizer.Begin(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// AuthorizeStatus reports whether a pending session is still waiting for
// its verification code.
func (h *SessionHandler) AuthorizeStatus(c echo.Context) error {
	session, err := h.authorizer.Status(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"auth_id": session.ID, "pending": true})
}

// AuthorizeComplete submits the verification code and returns the resulting
// token JSON.
func (h *SessionHandler) AuthorizeComplete(c echo.Context) error {
	var payload struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	if payload.Code == "" {
		return models.NewError(models.ErrInvalidSettings, "code is required")
	}
	token, err := h.authorizer.Complete(c.Request().Context(), c.Param("id"), payload.Code)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"token": token})
}

// AuthorizeCancel discards a pending authorization session.
func (h *SessionHandler) AuthorizeCancel(c echo.Context) error {
	h.authorizer.Cancel(c.Param("id"))
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "cancelled"})
}
