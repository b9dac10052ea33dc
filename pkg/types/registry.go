package types

import (
	"context"
	"net"
	"strconv"
)

// DefaultTag is used when an image reference carries no tag.
const DefaultTag = "latest"

// Endpoint is the parsed location of a registry.
type Endpoint struct {
	Host     string // Host name or IP address.
	Port     int    // TCP port, 443 unless the URL says otherwise.
	BasePath string // Path prefix the registry is mounted under, without trailing slash.
}

// Address returns the dialable "host:port" form of the endpoint.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// TrustConfig selects the certificate authorities used to verify the registry.
type TrustConfig struct {
	CAFile string // PEM bundle; empty selects the system trust store.
}

// ImageRef names one tag of a repository.
type ImageRef struct {
	Repository string
	Tag        string
}

// String renders the reference as "repository:tag".
func (r ImageRef) String() string {
	return r.Repository + ":" + r.Tag
}

// RegistryClient is the subset of registry operations a cleanup run needs.
type RegistryClient interface {
	ListRepositories(ctx context.Context, maxCount int, pattern string) ([]string, error)
	ListTags(ctx context.Context, repository string, pattern string) ([]string, error)
	ResolveDigest(ctx context.Context, imageRef string) (string, bool)
	Delete(ctx context.Context, repository string, digest string) bool
}
