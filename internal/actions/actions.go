package actions

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/internal/util"
	"github.com/nicholas-fedor/registry-cleaner/pkg/metrics"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// RunCleanupWithNotifications runs one cleanup, logs its summary and sends it to the notifier.
//
// The summary is logged and sent even when the run ended with an error, since
// a partial run may already have deleted images.
//
// Parameters:
//   - ctx: Context for registry requests.
//   - client: Registry client.
//   - notifier: Summary destination, may be nil.
//   - cfg: Run configuration.
//
// Returns:
//   - *metrics.Metric: Counts of the run.
//   - error: The error returned by Cleanup.
func RunCleanupWithNotifications(
	ctx context.Context,
	client types.RegistryClient,
	notifier types.Notifier,
	cfg types.Config,
) (*metrics.Metric, error) {
	start := time.Now()

	result, err := Cleanup(ctx, client, cfg)
	if err != nil {
		logrus.WithError(err).Error("Cleanup finished with errors")
	}

	result.LogSummary()

	finished := time.Now()

	logrus.WithFields(logrus.Fields{
		"deleted":  len(result.Deleted()),
		"failed":   len(result.Failed()),
		"skipped":  len(result.Skipped()),
		"dry_run":  cfg.DryRun,
		"duration": util.FormatDuration(finished.Sub(start)),
	}).Debug("Cleanup run finished")

	if notifier != nil {
		notifier.SendReport(result)
	}

	return metrics.NewMetric(result, finished), err
}
