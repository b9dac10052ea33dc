package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// errTextfileExport indicates the metrics could not be written to the textfile.
var errTextfileExport = errors.New("failed to write metrics textfile")

// Metric holds data points from one cleanup run.
type Metric struct {
	Deleted  int // Number of manifests deleted.
	Failed   int // Number of deletions that failed.
	Skipped  int // Number of tags without a resolvable digest.
	Planned  int // Number of deletions suppressed by dry-run.
	Scanned  int // Number of repositories whose tags were listed.
	Finished time.Time
}

// Metrics holds the collectors of registry-cleaner.
type Metrics struct {
	mu       sync.Mutex
	gatherer prometheus.Gatherer

	deleted   prometheus.Gauge   // Gauge for deleted images.
	failed    prometheus.Gauge   // Gauge for failed deletions.
	skipped   prometheus.Gauge   // Gauge for unresolvable tags.
	planned   prometheus.Gauge   // Gauge for dry-run deletions.
	scanned   prometheus.Gauge   // Gauge for listed repositories.
	lastRun   prometheus.Gauge   // Gauge for the completion time of the last run.
	total     prometheus.Counter // Counter for total runs.
	runsSkip  prometheus.Counter // Counter for scheduled runs skipped while another was running.
	collected []prometheus.Collector
}

// NewWithRegistry creates the collectors and registers them on registry.
//
// Parameters:
//   - registry: Prometheus registry used for registration and textfile export.
//
// Returns:
//   - *Metrics: Metrics handler.
//   - error: Non-nil if a collector is already registered.
func NewWithRegistry(registry *prometheus.Registry) (*Metrics, error) {
	metrics := &Metrics{
		gatherer: registry,
		deleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_cleaner_images_deleted",
			Help: "Number of images deleted during the last run",
		}),
		failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_cleaner_images_failed",
			Help: "Number of images whose deletion failed during the last run",
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_cleaner_images_skipped",
			Help: "Number of tags without a resolvable digest during the last run",
		}),
		planned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_cleaner_images_dry_run",
			Help: "Number of deletions planned but not performed in dry-run mode during the last run",
		}),
		scanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_cleaner_repositories_scanned",
			Help: "Number of repositories whose tags were listed during the last run",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_cleaner_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_cleaner_runs_total",
			Help: "Number of runs since registry-cleaner started",
		}),
		runsSkip: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_cleaner_runs_skipped_total",
			Help: "Number of scheduled runs skipped because a run was still in progress",
		}),
	}

	metrics.collected = []prometheus.Collector{
		metrics.deleted,
		metrics.failed,
		metrics.skipped,
		metrics.planned,
		metrics.scanned,
		metrics.lastRun,
		metrics.total,
		metrics.runsSkip,
	}

	for _, collector := range metrics.collected {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return metrics, nil
}

// Gatherer returns the registry the collectors are registered on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// NewMetric creates a Metric from a run report.
//
// Parameters:
//   - report: Run report.
//   - finished: Completion time of the run.
//
// Returns:
//   - *Metric: New metric instance.
func NewMetric(report types.Report, finished time.Time) *Metric {
	if report == nil {
		panic("NewMetric: report is nil")
	}

	return &Metric{
		Deleted:  len(report.Deleted()),
		Failed:   len(report.Failed()),
		Skipped:  len(report.Skipped()),
		Planned:  len(report.DryRun()),
		Scanned:  report.Scanned(),
		Finished: finished,
	}
}

// Record updates the collectors with a finished run.
func (m *Metrics) Record(metric *Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.Inc()
	m.deleted.Set(float64(metric.Deleted))
	m.failed.Set(float64(metric.Failed))
	m.skipped.Set(float64(metric.Skipped))
	m.planned.Set(float64(metric.Planned))
	m.scanned.Set(float64(metric.Scanned))
	m.lastRun.Set(float64(metric.Finished.Unix()))

	logrus.WithFields(logrus.Fields{
		"deleted": metric.Deleted,
		"failed":  metric.Failed,
		"skipped": metric.Skipped,
		"scanned": metric.Scanned,
	}).Debug("Recorded run metrics")
}

// RecordSkippedRun counts a scheduled run that did not start.
func (m *Metrics) RecordSkippedRun() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runsSkip.Inc()
}

// WriteTextfile writes the registry's metrics to path in the textfile format.
//
// The file is written to a temporary name and renamed, so a collector never
// reads a partial file.
//
// Parameters:
//   - path: Destination file, typically in the node-exporter textfile directory.
//
// Returns:
//   - error: Non-nil if gathering or writing fails.
func (m *Metrics) WriteTextfile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("%w: %s: %w", errTextfileExport, path, err)
	}

	logrus.WithField("path", path).Debug("Wrote metrics textfile")

	return nil
}
