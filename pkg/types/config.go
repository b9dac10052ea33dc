package types

import (
	"time"
)

// Config holds the immutable settings of a cleanup run.
//
// It is built once at startup by the flags package and passed by value to the
// registry client constructor and the cleanup action. Nothing in the program
// keeps a package-level copy of it.
type Config struct {
	// RegistryURL is the base URL of the registry, e.g. "https://registry.example.com:5000/mirror".
	RegistryURL string
	// CAFile is an optional PEM bundle trusted instead of the system roots.
	CAFile string
	// ImagesFilter is the regular expression applied to repository names.
	ImagesFilter string
	// TagsFilter is the regular expression applied to tag names.
	TagsFilter string
	// MaxImages is sent as the catalog "n" parameter and caps the repositories listed.
	MaxImages int
	// Timeout bounds connection setup, the wait for a response and each read of it.
	Timeout time.Duration
	// DryRun resolves digests but never deletes.
	DryRun bool
	// Force skips the confirmation prompt for dangerous filters.
	Force bool
	// Schedule is an optional cron spec; empty means run once.
	Schedule string
	// MetricsTextfile is an optional path for a Prometheus textfile export.
	MetricsTextfile string
	// NotificationURLs are shoutrrr service URLs receiving the run summary.
	NotificationURLs []string
	// NotificationTemplate is a builtin template name or a Go text/template body; empty selects "default".
	NotificationTemplate string
	// NotificationTitle overrides the notification title.
	NotificationTitle string
	// NotificationLogStdout writes the output of log-type services to stdout.
	NotificationLogStdout bool
	// APICleanup serves POST /v1/cleanup and keeps the process running.
	APICleanup bool
	// APIMetrics serves Prometheus metrics on /v1/metrics.
	APIMetrics bool
	// APIToken is the bearer token every HTTP API request must carry.
	APIToken string
	// APIHost is the address the HTTP API binds to.
	APIHost string
	// APIPort is the port of the HTTP API.
	APIPort string
}

// LongRunning reports whether the process keeps running after the first cleanup.
func (c Config) LongRunning() bool {
	return c.Schedule != "" || c.APICleanup
}
