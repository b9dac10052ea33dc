// Package session accumulates the outcome of a registry-cleaner run.
// It tracks every tag the orchestrator handled and summarizes deleted and
// failed images for logs, metrics and notifications.
//
// Key components:
//   - State: Outcome of a single tag (Deleted, Failed, Skipped, DryRun).
//   - ImageStatus: One tag with its digest, outcome and error.
//   - Result: Ordered outcomes of a run; implements types.Report.
//   - SummaryLine: Per-kind count, percentage and sorted entries.
//
// Usage example:
//
//	result := session.NewResult()
//	result.AddScanned("team/api")
//	result.AddDeleted("team/api:1.0", "sha256:...")
//	result.LogSummary()
//
// The package uses logrus for logging session events.
package session
