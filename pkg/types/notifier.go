package types

// Notifier defines the common interface for notification services.
type Notifier interface {
	SendReport(report Report) // Send the run summary.
	GetNames() []string       // Service names.
	GetURLs() []string        // Service URLs.
}
