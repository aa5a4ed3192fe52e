package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppRepo struct {
	apps []models.App
}

func (f *fakeAppRepo) Create(*models.App) error          { return nil }
func (f *fakeAppRepo) Update(*models.App) error          { return nil }
func (f *fakeAppRepo) Delete(string) error               { return nil }
func (f *fakeAppRepo) ClearRemote(string) error          { return nil }
func (f *fakeAppRepo) RenameRemote(string, string) error { return nil }
func (f *fakeAppRepo) List() ([]models.App, error)       { return f.apps, nil }
func (f *fakeAppRepo) FindByName(name string) (*models.App, error) {
	for i := range f.apps {
		if f.apps[i].Name == name {
			return &f.apps[i], nil
		}
	}
	return nil, models.NewError(models.ErrNotFound, "app not found")
}

type fakeBackups struct {
	mu      sync.Mutex
	ran     []string
	outcome string
	err     error
}

func (f *fakeBackups) Run(ctx context.Context, app models.App) models.JobExecution {
	execution, _ := f.RunByName(ctx, app.Name)
	return execution
}

func (f *fakeBackups) RunByName(ctx context.Context, name string) (models.JobExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.JobExecution{}, f.err
	}
	f.ran = append(f.ran, name)
	return models.JobExecution{AppName: name, Outcome: f.outcome}, nil
}

type fakeRetention struct {
	mu       sync.Mutex
	enforced []string
}

func (f *fakeRetention) Enforce(ctx context.Context, app models.App) (services.RetentionReport, error) {
	return f.EnforceByName(ctx, app.Name)
}

func (f *fakeRetention) EnforceByName(ctx context.Context, name string) (services.RetentionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enforced = append(f.enforced, name)
	return services.RetentionReport{}, nil
}

func TestReloadSchedulesOnlyValidSchedules(t *testing.T) {
	repo := &fakeAppRepo{apps: []models.App{
		{Name: "orders", Schedule: "0 3 * * *"},
		{Name: "manual-only"},
		{Name: "broken", Schedule: "every day at noon"},
	}}
	scheduler := NewScheduler(repo, &fakeBackups{outcome: models.OutcomeSuccess}, &fakeRetention{})

	require.NoError(t, scheduler.Reload())

	assert.True(t, scheduler.Scheduled("orders"))
	assert.False(t, scheduler.Scheduled("manual-only"))
	assert.False(t, scheduler.Scheduled("broken"))
}

func TestReloadReplacesPreviousTriggers(t *testing.T) {
	repo := &fakeAppRepo{apps: []models.App{{Name: "orders", Schedule: "@hourly"}}}
	scheduler := NewScheduler(repo, &fakeBackups{outcome: models.OutcomeSuccess}, &fakeRetention{})
	require.NoError(t, scheduler.Reload())

	repo.apps = []models.App{{Name: "invoices", Schedule: "@hourly"}}
	require.NoError(t, scheduler.Reload())

	assert.False(t, scheduler.Scheduled("orders"))
	assert.True(t, scheduler.Scheduled("invoices"))
}

func TestRescheduleAndUnschedule(t *testing.T) {
	scheduler := NewScheduler(&fakeAppRepo{}, &fakeBackups{outcome: models.OutcomeSuccess}, &fakeRetention{})

	require.NoError(t, scheduler.Reschedule(models.App{Name: "orders", Schedule: "@daily"}))
	assert.True(t, scheduler.Scheduled("orders"))

	// An empty schedule drops the trigger.
	require.NoError(t, scheduler.Reschedule(models.App{Name: "orders"}))
	assert.False(t, scheduler.Scheduled("orders"))

	require.NoError(t, scheduler.Reschedule(models.App{Name: "orders", Schedule: "@daily"}))
	scheduler.Unschedule("orders")
	assert.False(t, scheduler.Scheduled("orders"))

	assert.Error(t, scheduler.Reschedule(models.App{Name: "orders", Schedule: "nonsense"}))
	assert.False(t, scheduler.Scheduled("orders"))
}

func TestTriggerRunsRetentionAfterSuccessfulBackup(t *testing.T) {
	backups := &fakeBackups{outcome: models.OutcomeSuccess}
	retention := &fakeRetention{}
	scheduler := NewScheduler(&fakeAppRepo{}, backups, retention)

	scheduler.Trigger("orders")

	assert.Equal(t, []string{"orders"}, backups.ran)
	assert.Equal(t, []string{"orders"}, retention.enforced)
}

func TestTriggerSkipsRetentionAfterFailedBackup(t *testing.T) {
	backups := &fakeBackups{outcome: string(models.ErrUnreachable)}
	retention := &fakeRetention{}
	scheduler := NewScheduler(&fakeAppRepo{}, backups, retention)

	scheduler.Trigger("orders")

	assert.Equal(t, []string{"orders"}, backups.ran)
	assert.Empty(t, retention.enforced)
}

func TestTriggerToleratesMissingApps(t *testing.T) {
	backups := &fakeBackups{err: models.NewError(models.ErrNotFound, "app not found")}
	retention := &fakeRetention{}
	scheduler := NewScheduler(&fakeAppRepo{}, backups, retention)

	scheduler.Trigger("gone")

	assert.Empty(t, retention.enforced)
}
