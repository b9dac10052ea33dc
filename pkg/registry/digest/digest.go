// Package digest extracts manifest digests from registry responses.
//
// A digest is obtained only from the registry and handed back to it in the
// DELETE path, so a value outside the OCI digest grammar is rejected rather
// than sent back.
package digest

import (
	"errors"
	"fmt"
	"net/http"

	godigest "github.com/opencontainers/go-digest"
)

// ContentDigestHeader is the HTTP header carrying the manifest digest, e.g. "sha256:abc...".
const ContentDigestHeader = "Docker-Content-Digest"

// Errors for digest extraction.
var (
	// errMissingDigestHeader indicates a response without a Docker-Content-Digest header.
	errMissingDigestHeader = errors.New("registry response has no " + ContentDigestHeader + " header")
	// ErrInvalidDigest indicates a Docker-Content-Digest value outside the OCI digest grammar.
	ErrInvalidDigest = errors.New("invalid " + ContentDigestHeader + " value")
)

// ExtractHeadDigest returns the manifest digest from HEAD response headers.
//
// Parameters:
//   - header: Response headers.
//
// Returns:
//   - string: Digest exactly as sent by the registry.
//   - error: Non-nil if the header is absent, empty or not an OCI digest.
func ExtractHeadDigest(header http.Header) (string, error) {
	value := header.Get(ContentDigestHeader)
	if value == "" {
		return "", errMissingDigestHeader
	}

	if _, err := godigest.Parse(value); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidDigest, value, err)
	}

	return value, nil
}
