// Package actions provides the core logic of a registry-cleaner run.
// It gates dangerous filters behind a confirmation, walks the registry and
// deletes matching tags, then reports the outcome.
//
// Key components:
//   - ConfirmFilters: Asks before running with a filter that matches everything.
//   - Cleanup: Lists repositories and tags, resolves digests and deletes manifests.
//   - RunCleanupWithNotifications: Runs Cleanup, logs the summary and notifies.
//
// Usage example:
//
//	if err := actions.ConfirmFilters(cfg, os.Stdin, os.Stdout); err != nil {
//	    logrus.WithError(err).Fatal("Aborted")
//	}
//	result, err := actions.Cleanup(ctx, client, cfg)
//
// The package consumes the registry through types.RegistryClient and uses
// logrus for logging.
package actions
