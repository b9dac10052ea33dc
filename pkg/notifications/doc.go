// Package notifications sends the registry-cleaner run summary through Shoutrrr services.
//
// Key components:
//   - NewNotifier: Builds a notifier from the run configuration.
//   - Templates: Builtin "default", "porcelain.v1.summary" and "json.v1" renderings, or a custom Go template.
//
// Usage example:
//
//	notifier, err := notifications.NewNotifier(cfg)
//	if err != nil {
//	    logrus.WithError(err).Fatal("Invalid notification configuration")
//	}
//	if notifier != nil {
//	    notifier.SendReport(result)
//	}
package notifications
