// Package helpers provides utility functions for registry-related operations in registry-cleaner.
// It splits "repository:tag" image references.
package helpers

import (
	"strings"

	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// SplitImageRef splits an image reference on its first colon.
//
// A reference without a colon names the "latest" tag of the repository, so
// "alpine" and "alpine:latest" are equivalent.
func SplitImageRef(imageRef string) types.ImageRef {
	repository, tag, found := strings.Cut(imageRef, ":")
	if !found {
		return types.ImageRef{Repository: imageRef, Tag: types.DefaultTag}
	}

	return types.ImageRef{Repository: repository, Tag: tag}
}
