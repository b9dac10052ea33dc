// Package scheduling repeats registry-cleaner runs on a cron schedule.
// It allows at most one run at a time and shuts down on SIGINT, SIGTERM or
// context cancellation after the current run finishes.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// runWaitTimeout bounds how long shutdown waits for a running cleanup.
const runWaitTimeout = 60 * time.Second

// errInvalidSchedule indicates a cron specification that cannot be parsed.
var errInvalidSchedule = errors.New("invalid schedule")

// Hooks are the callbacks a schedule drives.
type Hooks struct {
	// Run performs one cleanup. Required.
	Run func(ctx context.Context)
	// Skipped is called when a tick fires while a run is in progress. Optional.
	Skipped func()
	// Scheduled is called once with the first run time before the scheduler starts. Optional.
	Scheduled func(next time.Time)
}

// ValidateSchedule checks a cron specification.
//
// Specifications have six fields, seconds first, or use a descriptor such as
// "@hourly" or "@every 30m".
func ValidateSchedule(schedule string) error {
	if _, err := cron.Parse(schedule); err != nil {
		return fmt.Errorf("%w: %q: %w", errInvalidSchedule, schedule, err)
	}

	return nil
}

// NewLock returns a lock channel holding its token.
func NewLock() chan bool {
	lock := make(chan bool, 1)
	lock <- true

	return lock
}

// WaitForRunningCleanup blocks until the lock token is back, the timeout
// elapses or ctx is done.
func WaitForRunningCleanup(ctx context.Context, lock chan bool) {
	logrus.Debug("Checking lock status before shutdown")

	if len(lock) > 0 {
		logrus.Debug("No cleanup running, lock available")

		return
	}

	select {
	case v := <-lock:
		lock <- v

		logrus.Debug("Lock acquired, cleanup finished")
	case <-time.After(runWaitTimeout):
		logrus.Warn("Timeout waiting for running cleanup to finish, proceeding with shutdown")
	case <-ctx.Done():
		logrus.Warn("Context cancelled while waiting for running cleanup")
	}
}

// RunOnSchedule runs hooks.Run on every tick of scheduleSpec until ctx is
// cancelled or the process receives SIGINT or SIGTERM.
//
// Parameters:
//   - ctx: Controls the scheduler's lifecycle and is passed to every run.
//   - scheduleSpec: Cron specification.
//   - lock: Single-token channel; nil creates one.
//   - hooks: Run and notification callbacks.
//
// Returns:
//   - error: Non-nil if the schedule is invalid.
func RunOnSchedule(ctx context.Context, scheduleSpec string, lock chan bool, hooks Hooks) error {
	if lock == nil {
		lock = NewLock()
	}

	scheduler := cron.New()

	runFunc := func() {
		select {
		case v := <-lock:
			defer func() { lock <- v }()

			hooks.Run(ctx)
			logrus.Debug("Cleanup run completed")
		default:
			if hooks.Skipped != nil {
				hooks.Skipped()
			}

			logrus.Debug("Skipped a cleanup run, another one is still running")
		}

		if entries := scheduler.Entries(); len(entries) > 0 {
			logrus.WithField("next_run", entries[0].Next).Debug("Scheduled next run")
		}
	}

	if err := scheduler.AddFunc(scheduleSpec, runFunc); err != nil {
		return fmt.Errorf("%w: %q: %w", errInvalidSchedule, scheduleSpec, err)
	}

	if hooks.Scheduled != nil {
		hooks.Scheduled(scheduler.Entries()[0].Schedule.Next(time.Now()))
	}

	scheduler.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	defer signal.Stop(interrupt)

	select {
	case <-ctx.Done():
		logrus.Debug("Context canceled, stopping scheduler")
	case <-interrupt:
		logrus.Debug("Received interrupt signal, stopping scheduler")
	}

	scheduler.Stop()
	logrus.Debug("Waiting for running cleanup to be finished")

	WaitForRunningCleanup(context.WithoutCancel(ctx), lock)

	logrus.Debug("Scheduler stopped")

	return nil
}
