// Package logging writes the startup banner of registry-cleaner.
// It reports the version, target registry, filters, notifiers and schedule.
package logging

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/internal/util"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// scheduleTimeLayout renders the first scheduled run.
const scheduleTimeLayout = "2006-01-02 15:04:05 -0700 MST"

// WriteStartupMessage logs the startup banner.
//
// Parameters:
//   - cfg: Validated run configuration.
//   - sched: Time of the first scheduled run, or zero for a one-time run.
//   - notifier: Configured notifier, or nil.
//   - version: Build version.
func WriteStartupMessage(cfg types.Config, sched time.Time, notifier types.Notifier, version string) {
	startupLog := SetupStartupLogger()

	startupLog.Info("registry-cleaner ", version)
	startupLog.WithFields(logrus.Fields{
		"registry": cfg.RegistryURL,
		"timeout":  cfg.Timeout,
	}).Info("Using registry")
	startupLog.WithFields(logrus.Fields{
		"images_filter": cfg.ImagesFilter,
		"tags_filter":   cfg.TagsFilter,
		"max_images":    cfg.MaxImages,
	}).Info("Using filters")
	startupLog.WithFields(logrus.Fields{
		"dry_run": util.FormatYesNo(cfg.DryRun),
		"force":   util.FormatYesNo(cfg.Force),
	}).Info("Run mode")

	if cfg.DryRun {
		startupLog.Info("Dry-run enabled, no image will be deleted")
	}

	var notifierNames []string
	if notifier != nil {
		notifierNames = notifier.GetNames()
	}

	LogNotifierInfo(startupLog, notifierNames)
	LogScheduleInfo(startupLog, cfg, sched)

	if cfg.MetricsTextfile != "" {
		startupLog.WithField("path", cfg.MetricsTextfile).Info("Writing metrics textfile after each run")
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		startupLog.Warn(
			"Trace level enabled: log will include sensitive information such as notification URLs",
		)
	}
}

// SetupStartupLogger returns the entry the banner is written to.
func SetupStartupLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithField("notify", "no")
}

// LogNotifierInfo logs the configured notification services.
func LogNotifierInfo(log *logrus.Entry, notifierNames []string) {
	if len(notifierNames) > 0 {
		log.Info("Using notifications: " + strings.Join(notifierNames, ", "))
	} else {
		log.Info("Using no notifications")
	}
}

// LogScheduleInfo logs whether the cleaner runs once, on a schedule or on API requests.
//
// Parameters:
//   - log: Entry to write to.
//   - cfg: Run configuration.
//   - sched: Time of the first scheduled run, or zero.
func LogScheduleInfo(log *logrus.Entry, cfg types.Config, sched time.Time) {
	switch {
	case !sched.IsZero():
		until := util.FormatDuration(time.Until(sched))
		log.WithField("schedule", cfg.Schedule).Info("Scheduling first run: " + sched.Format(scheduleTimeLayout))
		log.Info("Note that the first cleanup will be performed in " + until)
	case cfg.Schedule != "":
		log.WithField("schedule", cfg.Schedule).Info("Periodic cleanups are enabled")
	case cfg.APICleanup:
		log.Info("Cleanups via HTTP API enabled. Periodic cleanups are not enabled.")
	default:
		log.Info("Running a one time cleanup")
	}

	if cfg.APICleanup && cfg.Schedule != "" {
		log.Info("Cleanups via HTTP API are also enabled")
	}
}
