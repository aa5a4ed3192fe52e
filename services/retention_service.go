package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/repositories"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/sirupsen/logrus"
)

// RetentionReport lists what a sweep kept and deleted, most recent first.
type RetentionReport struct {
	Deleted []string `json:"deleted"`
	Kept    []string `json:"kept"`
}

type RetentionServiceInterface interface {
	Enforce(ctx context.Context, app models.App) (RetentionReport, error)
	EnforceByName(ctx context.Context, name string) (RetentionReport, error)
}

// RetentionService prunes old artifacts per the app's calendar caps. Each
// cap keeps the most recent artifact of each of the N most recent calendar
// buckets (days, ISO weeks, months, all UTC); an artifact kept by any cap
// survives the sweep.
type RetentionService struct {
	apps    repositories.AppRepository
	remotes repositories.RemoteRepository
	tool    transfer.Tool
}

func NewRetentionService(
	apps repositories.AppRepository,
	remotes repositories.RemoteRepository,
	tool transfer.Tool,
) *RetentionService {
	return &RetentionService{apps: apps, remotes: remotes, tool: tool}
}

type artifact struct {
	name string
	ts   time.Time
}

// EnforceByName resolves the app and runs the sweep.
func (rs *RetentionService) EnforceByName(ctx context.Context, name string) (RetentionReport, error) {
	app, err := rs.apps.FindByName(name)
	if err != nil {
		return RetentionReport{}, err
	}
	return rs.Enforce(ctx, *app)
}

func (rs *RetentionService) Enforce(ctx context.Context, app models.App) (RetentionReport, error) {
	if !app.HasRetention() {
		logrus.WithField("app", app.Name).Debug("No retention caps configured, keeping everything")
		return RetentionReport{}, nil
	}
	if app.RemoteName == "" {
		return RetentionReport{}, models.NewError(models.ErrInvalidSettings, "app has no remote assigned")
	}
	remote, err := rs.remotes.FindByName(app.RemoteName)
	if err != nil {
		return RetentionReport{}, models.WrapError(models.ErrInvalidSettings, fmt.Sprintf("assigned remote %q is gone", app.RemoteName), err)
	}

	objects, err := rs.tool.List(ctx, remote.Route)
	if err != nil {
		return RetentionReport{}, err
	}
	artifacts := collectArtifacts(app.Name, objects)

	keep := map[string]bool{}
	markKept(artifacts, app.RetainDaily, keep, dayBucket)
	markKept(artifacts, app.RetainWeekly, keep, weekBucket)
	markKept(artifacts, app.RetainMonthly, keep, monthBucket)

	report := RetentionReport{}
	for _, candidate := range artifacts {
		if keep[candidate.name] {
			report.Kept = append(report.Kept, candidate.name)
			continue
		}
		if err := rs.tool.Delete(ctx, remote.Route, candidate.name); err != nil {
			logrus.WithFields(logrus.Fields{"app": app.Name, "artifact": candidate.name}).
				Warn("Could not delete expired artifact, skipping: ", err)
			continue
		}
		retentionDeletedTotal.Inc()
		report.Deleted = append(report.Deleted, candidate.name)
	}
	logrus.WithFields(logrus.Fields{
		"app":     app.Name,
		"kept":    len(report.Kept),
		"deleted": len(report.Deleted),
	}).Info("Retention sweep finished")
	return report, nil
}

// collectArtifacts filters the listing down to this app's artifacts with a
// parseable embedded timestamp, sorted most recent first. Foreign objects
// are never touched by the sweep.
func collectArtifacts(appName string, objects []transfer.Object) []artifact {
	var artifacts []artifact
	for _, object := range objects {
		if ts, ok := parseArtifactTime(appName, object.Name); ok {
			artifacts = append(artifacts, artifact{name: object.Name, ts: ts})
		}
	}
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].ts.Equal(artifacts[j].ts) {
			return artifacts[i].name > artifacts[j].name
		}
		return artifacts[i].ts.After(artifacts[j].ts)
	})
	return artifacts
}

// markKept walks the artifacts (already newest first) and keeps the first
// artifact seen in each of the limit most recent buckets.
func markKept(artifacts []artifact, limit int, keep map[string]bool, bucket func(time.Time) string) {
	if limit <= 0 {
		return
	}
	seen := map[string]bool{}
	kept := 0
	for _, candidate := range artifacts {
		key := bucket(candidate.ts)
		if seen[key] {
			continue
		}
		seen[key] = true
		if kept < limit {
			keep[candidate.name] = true
			kept++
		}
	}
}

func dayBucket(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

func weekBucket(ts time.Time) string {
	year, week := ts.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func monthBucket(ts time.Time) string {
	return ts.UTC().Format("2006-01")
}
