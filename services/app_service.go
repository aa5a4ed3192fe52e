package services

import (
	"net/url"
	"regexp"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/repositories"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// appNamePattern keeps app names usable inside artifact filenames and URLs.
var appNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type AppServiceInterface interface {
	List() ([]models.App, error)
	Get(name string) (models.App, error)
	Create(app models.App) (models.App, error)
	Update(name string, incoming models.App) (models.App, error)
	Delete(name string) error
}

// AppService is the registry of backed-up applications: thin CRUD over the
// repository plus structural validation of every field the pipeline relies
// on. The shared token is write-only: responses never carry it and an empty
// token on update keeps the stored one.
type AppService struct {
	apps    repositories.AppRepository
	remotes repositories.RemoteRepository
}

func NewAppService(apps repositories.AppRepository, remotes repositories.RemoteRepository) *AppService {
	return &AppService{apps: apps, remotes: remotes}
}

func (as *AppService) List() ([]models.App, error) {
	return as.apps.List()
}

func (as *AppService) Get(name string) (models.App, error) {
	app, err := as.apps.FindByName(name)
	if err != nil {
		return models.App{}, err
	}
	return *app, nil
}

func (as *AppService) Create(app models.App) (models.App, error) {
	if err := as.validate(app, true); err != nil {
		return models.App{}, err
	}
	if _, err := as.apps.FindByName(app.Name); err == nil {
		return models.App{}, models.Errorf(models.ErrInvalidSettings, "an app named %q already exists", app.Name)
	}
	if err := as.apps.Create(&app); err != nil {
		return models.App{}, err
	}
	logrus.WithFields(logrus.Fields{"app": app.Name, "schedule": app.Schedule}).Info("App registered")
	return app, nil
}

func (as *AppService) Update(name string, incoming models.App) (models.App, error) {
	existing, err := as.apps.FindByName(name)
	if err != nil {
		return models.App{}, err
	}
	updated := *existing
	updated.Name = incoming.Name
	if updated.Name == "" {
		updated.Name = existing.Name
	}
	updated.BaseURL = incoming.BaseURL
	updated.Schedule = incoming.Schedule
	updated.RemoteName = incoming.RemoteName
	updated.RetainDaily = incoming.RetainDaily
	updated.RetainWeekly = incoming.RetainWeekly
	updated.RetainMonthly = incoming.RetainMonthly
	if incoming.Token != "" {
		updated.Token = incoming.Token
	}
	if err := as.validate(updated, false); err != nil {
		return models.App{}, err
	}
	if updated.Name != name {
		if _, err := as.apps.FindByName(updated.Name); err == nil {
			return models.App{}, models.Errorf(models.ErrInvalidSettings, "an app named %q already exists", updated.Name)
		}
	}
	if err := as.apps.Update(&updated); err != nil {
		return models.App{}, err
	}
	logrus.WithField("app", updated.Name).Info("App updated")
	return updated, nil
}

func (as *AppService) Delete(name string) error {
	if _, err := as.apps.FindByName(name); err != nil {
		return err
	}
	if err := as.apps.Delete(name); err != nil {
		return err
	}
	logrus.WithField("app", name).Info("App removed")
	return nil
}

func (as *AppService) validate(app models.App, create bool) error {
	if app.Name == "" {
		return models.NewError(models.ErrInvalidSettings, "name is required")
	}
	if !appNamePattern.MatchString(app.Name) {
		return models.Errorf(models.ErrInvalidSettings, "%q is not a usable app name", app.Name)
	}
	if app.BaseURL == "" {
		return models.NewError(models.ErrInvalidSettings, "url is required")
	}
	parsed, err := url.Parse(app.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return models.Errorf(models.ErrInvalidSettings, "%q is not a usable app URL", app.BaseURL)
	}
	if create && app.Token == "" {
		return models.NewError(models.ErrInvalidSettings, "token is required")
	}
	if app.Schedule != "" {
		if _, err := cron.ParseStandard(app.Schedule); err != nil {
			return models.WrapError(models.ErrInvalidSettings, "schedule is not a valid cron expression", err)
		}
	}
	if app.RetainDaily < 0 || app.RetainWeekly < 0 || app.RetainMonthly < 0 {
		return models.NewError(models.ErrInvalidSettings, "retention caps cannot be negative")
	}
	if app.RemoteName != "" {
		if _, err := as.remotes.FindByName(app.RemoteName); err != nil {
			return models.Errorf(models.ErrInvalidSettings, "remote %q does not exist", app.RemoteName)
		}
	}
	return nil
}
