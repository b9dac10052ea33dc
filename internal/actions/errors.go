package actions

import (
	"errors"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
)

// Errors for cleanup runs.
var (
	// ErrAborted indicates the user declined to run with a dangerous filter.
	ErrAborted = fmt.Errorf("cleanup aborted by user: %w", cerrdefs.ErrAborted)
	// errListRepositoriesFailed indicates the catalog could not be listed.
	errListRepositoriesFailed = errors.New("failed to list repositories")
	// errListTagsFailed indicates the tags of a repository could not be listed.
	errListTagsFailed = errors.New("failed to list tags")
)
