package types

// Filter reports whether a repository or tag name is selected for cleanup.
type Filter func(name string) bool
