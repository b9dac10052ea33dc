// Package meta holds build metadata injected with -ldflags.
package meta

var (
	// Version is the release version, e.g. "v1.2.0".
	Version = "v0.0.0-unknown"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
	// Date is the build date.
	Date = "unknown"
)

// UserAgent renders the User-Agent sent to registries.
func UserAgent() string {
	return "registry-cleaner/" + Version
}
