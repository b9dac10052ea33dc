package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/registry-cleaner/internal/actions"
	internalAPI "github.com/nicholas-fedor/registry-cleaner/internal/api"
	"github.com/nicholas-fedor/registry-cleaner/internal/flags"
	"github.com/nicholas-fedor/registry-cleaner/internal/logging"
	"github.com/nicholas-fedor/registry-cleaner/internal/meta"
	"github.com/nicholas-fedor/registry-cleaner/internal/scheduling"
	"github.com/nicholas-fedor/registry-cleaner/pkg/metrics"
	"github.com/nicholas-fedor/registry-cleaner/pkg/notifications"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/transport"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// errMetricsSetup indicates the metrics collectors could not be registered.
var errMetricsSetup = errors.New("failed to set up metrics")

// rootCmd is the registry-cleaner command.
var rootCmd = NewRootCommand()

// runner holds the collaborators of one invocation.
type runner struct {
	cfg      types.Config
	notifier types.Notifier
	metrics  *metrics.Metrics
}

// NewRootCommand creates the root command of the CLI.
//
// Returns:
//   - *cobra.Command: Root command with no flags registered.
func NewRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "registry-cleaner",
		Short: "Deletes images from a Docker registry by repository and tag pattern",
		Long: "\nregistry-cleaner lists the repositories and tags of a registry speaking the HTTP API v2, " +
			"selects them with regular expressions and deletes the matching manifests by digest.\n" +
			"Runs in dry-run mode unless DRY_RUN=NO or --dry-run no is given.",
		PersistentPreRunE: preRun,
		RunE:              run,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
}

// init registers flags and subcommands.
func init() {
	flags.SetDefaults()
	flags.RegisterRegistryFlags(rootCmd)
	flags.RegisterCleanupFlags(rootCmd)
	flags.RegisterSystemFlags(rootCmd)
	flags.RegisterNotificationFlags(rootCmd)
	flags.RegisterAPIFlags(rootCmd)

	rootCmd.AddCommand(newListCommand())
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("registry-cleaner failed")
		os.Exit(1)
	}
}

// preRun normalizes flags and configures logging before any command runs.
func preRun(cmd *cobra.Command, _ []string) error {
	flagsSet := cmd.Root().PersistentFlags()

	if err := flags.ProcessFlagAliases(flagsSet); err != nil {
		return err
	}

	if err := flags.SetupLogging(flagsSet); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if err := flags.GetSecretsFromFiles(cmd.Root()); err != nil {
		return err
	}

	transport.UserAgent = meta.UserAgent()

	return nil
}

// run executes the cleanup once, on the configured schedule or on API requests.
func run(cmd *cobra.Command, _ []string) error {
	cfg, err := flags.ReadConfig(cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}

	if err := actions.ConfirmFilters(cfg, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return err
	}

	r, err := newRunner(cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !cfg.LongRunning() {
		if cfg.APIMetrics {
			logrus.Warn("The HTTP API is only served together with --schedule or --http-api-cleanup")
		}

		logging.WriteStartupMessage(cfg, time.Time{}, r.notifier, meta.Version)

		return r.runOnce(ctx)
	}

	return r.serve(ctx)
}

// serve keeps running cleanups from the scheduler and the HTTP API until interrupted.
func (r *runner) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock := scheduling.NewLock()

	if _, err := internalAPI.SetupAndStartAPI(ctx, r.cfg, lock, r.runCleanup, r.metrics.Gatherer()); err != nil {
		return err
	}

	if r.cfg.Schedule == "" {
		logging.WriteStartupMessage(r.cfg, time.Time{}, r.notifier, meta.Version)

		<-ctx.Done()
		scheduling.WaitForRunningCleanup(context.WithoutCancel(ctx), lock)

		return nil
	}

	return scheduling.RunOnSchedule(ctx, r.cfg.Schedule, lock, scheduling.Hooks{
		Run: func(ctx context.Context) {
			if err := r.runOnce(ctx); err != nil {
				logrus.WithError(err).Error("Scheduled cleanup failed")
			}
		},
		Skipped: r.metrics.RecordSkippedRun,
		Scheduled: func(next time.Time) {
			logging.WriteStartupMessage(r.cfg, next, r.notifier, meta.Version)
		},
	})
}

// newRunner builds the notifier and metrics of an invocation.
func newRunner(cfg types.Config, promRegistry *prometheus.Registry) (*runner, error) {
	notifier, err := notifications.NewNotifier(cfg)
	if err != nil {
		return nil, err
	}

	collectors, err := metrics.NewWithRegistry(promRegistry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMetricsSetup, err)
	}

	return &runner{cfg: cfg, notifier: notifier, metrics: collectors}, nil
}

// runOnce runs one cleanup and reports only its error.
func (r *runner) runOnce(ctx context.Context) error {
	_, err := r.runCleanup(ctx)

	return err
}

// runCleanup connects to the registry, runs one cleanup and records its metrics.
//
// A new client is opened for every run and closed afterwards.
func (r *runner) runCleanup(ctx context.Context) (*metrics.Metric, error) {
	client, err := registry.New(ctx, r.cfg.RegistryURL, r.cfg.CAFile, r.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	metric, err := actions.RunCleanupWithNotifications(ctx, client, r.notifier, r.cfg)

	r.metrics.Record(metric)

	if r.cfg.MetricsTextfile != "" {
		if exportErr := r.metrics.WriteTextfile(r.cfg.MetricsTextfile); exportErr != nil {
			logrus.WithError(exportErr).
				WithField("path", r.cfg.MetricsTextfile).
				Warn("Failed to write metrics textfile")
		}
	}

	return metric, err
}
