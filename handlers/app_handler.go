package handlers

import (
	"net/http"
	"strconv"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/repositories"
	"github.com/gabofunebre/backuper/services"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Scheduler is the trigger registration surface the registry handlers use
// to keep cron entries in step with app mutations.
type Scheduler interface {
	Reschedule(app models.App) error
	Unschedule(appName string)
}

// appPayload is the request body for app creation and updates. The token is
// accepted here but never echoed back; models.App hides it on output.
type appPayload struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Token         string `json:"token"`
	Schedule      string `json:"schedule"`
	Remote        string `json:"remote"`
	RetainDaily   int    `json:"retain_daily"`
	RetainWeekly  int    `json:"retain_weekly"`
	RetainMonthly int    `json:"retain_monthly"`
}

func (p appPayload) toModel() models.App {
	return models.App{
		Name:          p.Name,
		BaseURL:       p.URL,
		Token:         p.Token,
		Schedule:      p.Schedule,
		RemoteName:    p.Remote,
		RetainDaily:   p.RetainDaily,
		RetainWeekly:  p.RetainWeekly,
		RetainMonthly: p.RetainMonthly,
	}
}

type AppHandler struct {
	apps       services.AppServiceInterface
	executions repositories.ExecutionRepository
	scheduler  Scheduler
}

func NewAppHandler(apps services.AppServiceInterface, executions repositories.ExecutionRepository, scheduler Scheduler) *AppHandler {
	return &AppHandler{apps: apps, executions: executions, scheduler: scheduler}
}

func (h *AppHandler) List(c echo.Context) error {
	apps, err := h.apps.List()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apps)
}

func (h *AppHandler) Get(c echo.Context) error {
	app, err := h.apps.Get(c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, app)
}

func (h *AppHandler) Create(c echo.Context) error {
	var payload appPayload
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	app, err := h.apps.Create(payload.toModel())
	if err != nil {
		return err
	}
	h.reschedule(app)
	return c.JSON(http.StatusCreated, app)
}

func (h *AppHandler) Update(c echo.Context) error {
	var payload appPayload
	if err := c.Bind(&payload); err != nil {
		return models.WrapError(models.ErrInvalidSettings, "request body is not valid JSON", err)
	}
	name := c.Param("name")
	app, err := h.apps.Update(name, payload.toModel())
	if err != nil {
		return err
	}
	if app.Name != name {
		h.scheduler.Unschedule(name)
	}
	h.reschedule(app)
	return c.JSON(http.StatusOK, app)
}

func (h *AppHandler) Delete(c echo.Context) error {
	name := c.Param("name")
	if err := h.apps.Delete(name); err != nil {
		return err
	}
	h.scheduler.Unschedule(name)
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "deleted"})
}

// Executions returns recent job executions, newest first, optionally
// filtered by ?app= and capped by ?limit=.
func (h *AppHandler) Executions(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	executions, err := h.executions.ListRecent(c.QueryParam("app"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, executions)
}

// reschedule keeps the cron entry in step with the stored app. The schedule
// was already validated, so a failure here is logged rather than failing the
// registry operation that already committed.
func (h *AppHandler) reschedule(app models.App) {
	if err := h.scheduler.Reschedule(app); err != nil {
		logrus.WithField("app", app.Name).Error("Could not reschedule backup trigger: ", err)
	}
}
