// Package manifest provides the registry API paths and manifest media types
// used by registry-cleaner.
package manifest

import (
	"net/url"
	"strconv"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Manifest media types negotiated when resolving a tag to a digest.
const (
	// MediaTypeDockerManifest is the Docker image manifest, schema 2.
	MediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"
	// MediaTypeOCIManifest is the OCI image manifest.
	MediaTypeOCIManifest = v1.MediaTypeImageManifest
)

// NegotiationOrder lists the Accept values tried, in order, when resolving a digest.
// Registries differ in which schema they serve and some only report the digest
// for the exact media type requested.
var NegotiationOrder = []string{MediaTypeDockerManifest, MediaTypeOCIManifest}

// CatalogPath returns the catalog listing path capped at maxCount repositories.
//
// Example: CatalogPath("/mirror", 100) is "/mirror/v2/_catalog?n=100".
func CatalogPath(basePath string, maxCount int) string {
	query := url.Values{"n": []string{strconv.Itoa(maxCount)}}

	return basePath + "/v2/_catalog?" + query.Encode()
}

// TagsPath returns the tag listing path of a repository.
func TagsPath(basePath, repository string) string {
	return basePath + "/v2/" + repository + "/tags/list"
}

// ManifestPath returns the manifest path of a repository for a tag or digest.
func ManifestPath(basePath, repository, reference string) string {
	return basePath + "/v2/" + repository + "/manifests/" + reference
}
