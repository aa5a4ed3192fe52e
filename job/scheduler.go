// Package jobs drives the scheduled backup triggers.
package jobs

import (
	"context"
	"sync"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/repositories"
	"github.com/gabofunebre/backuper/services"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler fires one trigger per app on its cron schedule. A trigger runs
// the backup and, when it succeeds, the retention sweep for the same app;
// retention never overlaps an in-flight upload because it only starts after
// the run returned. Overlap protection across triggers lives in the backup
// service itself.
type Scheduler struct {
	apps      repositories.AppRepository
	backups   services.BackupServiceInterface
	retention services.RetentionServiceInterface

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(
	apps repositories.AppRepository,
	backups services.BackupServiceInterface,
	retention services.RetentionServiceInterface,
) *Scheduler {
	return &Scheduler{
		apps:      apps,
		backups:   backups,
		retention: retention,
		cron:      cron.New(),
		entries:   make(map[string]cron.EntryID),
	}
}

// Start begins firing triggers. Reload must have been called at least once
// for anything to be scheduled.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the timers and waits for triggers already firing to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reload re-reads the app registry and rebuilds the trigger set. Apps
// without a schedule are skipped; unparseable schedules are logged and
// skipped so one bad app cannot take the rest of the fleet down.
func (s *Scheduler) Reload() error {
	apps, err := s.apps.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	for _, app := range apps {
		if err := s.schedule(app); err != nil {
			logrus.WithFields(logrus.Fields{"app": app.Name, "schedule": app.Schedule}).
				Error("Could not schedule backup trigger: ", err)
		}
	}
	return nil
}

// Reschedule replaces the app's trigger with one for its current schedule.
// An empty schedule just drops the trigger.
func (s *Scheduler) Reschedule(app models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[app.Name]; ok {
		s.cron.Remove(id)
		delete(s.entries, app.Name)
	}
	return s.schedule(app)
}

// Unschedule drops the app's trigger, if any.
func (s *Scheduler) Unschedule(appName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[appName]; ok {
		s.cron.Remove(id)
		delete(s.entries, appName)
	}
}

// schedule registers a trigger for the app. Caller holds s.mu.
func (s *Scheduler) schedule(app models.App) error {
	if app.Schedule == "" {
		return nil
	}
	name := app.Name
	id, err := s.cron.AddFunc(app.Schedule, func() { s.Trigger(name) })
	if err != nil {
		return err
	}
	s.entries[name] = id
	logrus.WithFields(logrus.Fields{"app": name, "schedule": app.Schedule}).Info("Backup trigger scheduled")
	return nil
}

// Trigger runs one full cycle for the named app: backup, then retention on
// success. The app is resolved at fire time so edits between triggers take
// effect without a reload.
func (s *Scheduler) Trigger(appName string) {
	ctx := context.Background()
	execution, err := s.backups.RunByName(ctx, appName)
	if err != nil {
		logrus.WithField("app", appName).Error("Scheduled backup could not start: ", err)
		return
	}
	if !execution.Succeeded() {
		return
	}
	if _, err := s.retention.EnforceByName(ctx, appName); err != nil {
		logrus.WithField("app", appName).Error("Retention sweep failed: ", err)
	}
}

// Scheduled reports whether a trigger is registered for the app.
func (s *Scheduler) Scheduled(appName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[appName]
	return ok
}
