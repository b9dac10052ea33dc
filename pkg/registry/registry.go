package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/filters"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/digest"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/helpers"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/manifest"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/transport"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// defaultHTTPSPort is used when the registry URL carries no port.
const defaultHTTPSPort = 443

// secureScheme is the only scheme a registry URL may use.
const secureScheme = "https"

// CatalogResponse is the body of a catalog listing.
type CatalogResponse struct {
	Repositories []string `json:"repositories"`
}

// TagsResponse is the body of a tag listing. Tags is nil when the registry
// omits the field or sends null.
type TagsResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Client speaks the registry HTTP API v2 over one TLS session.
//
// A Client is not meant to be shared between goroutines; its requests are
// serialized on a single connection. Create one Client per concurrent caller.
type Client struct {
	endpoint types.Endpoint
	session  *transport.Session
}

// New parses the registry URL and opens the TLS session eagerly.
//
// Parameters:
//   - ctx: Context for the initial connection.
//   - registryURL: Registry base URL; must use https.
//   - caFile: Optional CA bundle; empty selects the system trust store.
//   - timeout: Bound on connection setup, the wait for a response and each read of it.
//
// Returns:
//   - *Client: Connected client.
//   - error: ErrInvalidConfig for a bad URL or CA file, ErrConnection if the registry is unreachable.
func New(ctx context.Context, registryURL, caFile string, timeout time.Duration) (*Client, error) {
	endpoint, err := ParseEndpoint(registryURL)
	if err != nil {
		return nil, err
	}

	session, err := transport.Open(ctx, endpoint, types.TrustConfig{CAFile: caFile}, timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTrustConfig) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}

		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"host":      endpoint.Host,
		"port":      endpoint.Port,
		"base_path": endpoint.BasePath,
	}).Debug("Connected to registry")

	return &Client{endpoint: endpoint, session: session}, nil
}

// ParseEndpoint extracts host, port and base path from a registry URL.
//
// Parameters:
//   - registryURL: URL such as "https://registry.example.com:5000/mirror".
//
// Returns:
//   - types.Endpoint: Parsed endpoint; port defaults to 443, trailing slashes are dropped from the path.
//   - error: ErrInvalidConfig if the URL does not parse, is not https or has no host.
func ParseEndpoint(registryURL string) (types.Endpoint, error) {
	parsed, err := url.Parse(registryURL)
	if err != nil {
		return types.Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if parsed.Scheme != secureScheme {
		return types.Endpoint{}, fmt.Errorf(
			"%w: registry URL must start with 'https://': %q",
			ErrInvalidConfig,
			registryURL,
		)
	}

	if parsed.Hostname() == "" {
		return types.Endpoint{}, fmt.Errorf("%w: registry URL has no host: %q", ErrInvalidConfig, registryURL)
	}

	port := defaultHTTPSPort

	if rawPort := parsed.Port(); rawPort != "" {
		port, err = strconv.Atoi(rawPort)
		if err != nil {
			return types.Endpoint{}, fmt.Errorf("%w: invalid port %q: %w", ErrInvalidConfig, rawPort, err)
		}
	}

	return types.Endpoint{
		Host:     parsed.Hostname(),
		Port:     port,
		BasePath: strings.TrimRight(parsed.Path, "/"),
	}, nil
}

// Endpoint returns the parsed registry endpoint.
func (c *Client) Endpoint() types.Endpoint {
	return c.endpoint
}

// Close releases the client's session.
func (c *Client) Close() {
	c.session.Close()
}

// ListRepositories lists up to maxCount repositories matching pattern.
//
// Catalog entries that are not valid repository names are logged and left out.
//
// The catalog is requested once with n=maxCount; Link pagination is not
// followed, so registries holding more repositories are truncated.
//
// Parameters:
//   - ctx: Context for the request.
//   - maxCount: Catalog size cap sent to the registry.
//   - pattern: Regular expression searched in each name.
//
// Returns:
//   - []string: Matching repositories in registry order.
//   - error: ProtocolError, ErrConnection, ErrInvalidResponse or ErrInvalidConfig for a bad pattern.
func (c *Client) ListRepositories(ctx context.Context, maxCount int, pattern string) ([]string, error) {
	filter, err := filters.FilterByPattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var catalog CatalogResponse
	if err := c.getJSON(ctx, manifest.CatalogPath(c.endpoint.BasePath, maxCount), &catalog); err != nil {
		return nil, err
	}

	matched := filters.Apply(catalog.Repositories, filter)

	repositories := make([]string, 0, len(matched))
	for _, name := range matched {
		if _, err := reference.WithName(name); err != nil {
			logrus.WithError(err).WithField("repository", name).Warn("Skipping catalog entry that is not a valid repository name")

			continue
		}

		repositories = append(repositories, name)
	}

	logrus.WithFields(logrus.Fields{
		"listed":  len(catalog.Repositories),
		"matched": len(repositories),
		"pattern": pattern,
	}).Debug("Listed repositories")

	return repositories, nil
}

// ListTags lists the tags of a repository matching pattern.
//
// Tags that are not valid tag names are logged and left out.
//
// Parameters:
//   - ctx: Context for the request.
//   - repository: Repository name.
//   - pattern: Regular expression searched in each tag.
//
// Returns:
//   - []string: Matching tags rendered "repository:tag", in registry order; empty when the repository has no tags.
//   - error: ProtocolError, ErrConnection, ErrInvalidResponse, ErrInvalidConfig for a bad pattern or ErrInvalidName.
func (c *Client) ListTags(ctx context.Context, repository string, pattern string) ([]string, error) {
	filter, err := filters.FilterByPattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	named, err := reference.WithName(repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidName, repository, err)
	}

	var tags TagsResponse
	if err := c.getJSON(ctx, manifest.TagsPath(c.endpoint.BasePath, repository), &tags); err != nil {
		return nil, err
	}

	matched := filters.Apply(tags.Tags, filter)

	imageRefs := make([]string, 0, len(matched))
	for _, tag := range matched {
		tagged, err := reference.WithTag(named, tag)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"repository": repository,
				"tag":        tag,
			}).Warn("Skipping tag that is not a valid tag name")

			continue
		}

		imageRefs = append(imageRefs, tagged.String())
	}

	logrus.WithFields(logrus.Fields{
		"repository": repository,
		"listed":     len(tags.Tags),
		"matched":    len(imageRefs),
		"pattern":    pattern,
	}).Debug("Listed tags")

	return imageRefs, nil
}

// ResolveDigest asks the registry for the manifest digest of a tag.
//
// The Docker schema 2 media type is requested first and the OCI manifest media
// type only if that attempt fails. A reference without a tag resolves "latest".
//
// Parameters:
//   - ctx: Context for the requests.
//   - imageRef: Reference "repository[:tag]".
//
// Returns:
//   - string: Digest as reported in Docker-Content-Digest.
//   - bool: False when neither media type yields a digest.
func (c *Client) ResolveDigest(ctx context.Context, imageRef string) (string, bool) {
	ref := helpers.SplitImageRef(imageRef)
	path := manifest.ManifestPath(c.endpoint.BasePath, ref.Repository, ref.Tag)

	fields := logrus.Fields{
		"repository": ref.Repository,
		"tag":        ref.Tag,
	}

	for _, mediaType := range manifest.NegotiationOrder {
		value, err := c.headDigest(ctx, path, mediaType)
		if err == nil {
			logrus.WithFields(fields).WithFields(logrus.Fields{
				"digest":     value,
				"media_type": mediaType,
			}).Debug("Resolved digest")

			return value, true
		}

		logrus.WithError(err).WithFields(fields).
			WithField("media_type", mediaType).
			Debug("Digest lookup failed")
	}

	return "", false
}

// Delete removes a manifest by digest.
//
// Failures are logged and reported as false; they never abort the caller.
//
// Parameters:
//   - ctx: Context for the request.
//   - repository: Repository name.
//   - digest: Manifest digest as returned by ResolveDigest.
//
// Returns:
//   - bool: True iff the registry answered 2xx.
func (c *Client) Delete(ctx context.Context, repository string, digest string) bool {
	path := manifest.ManifestPath(c.endpoint.BasePath, repository, digest)

	if _, err := c.request(ctx, http.MethodDelete, path, nil); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"repository": repository,
			"digest":     digest,
		}).Warn("Failed to delete manifest")

		return false
	}

	return true
}

// headDigest performs one HEAD manifest request for a media type.
// Redirects are not followed here; a 3xx counts as a failed attempt.
func (c *Client) headDigest(ctx context.Context, path string, mediaType string) (string, error) {
	resp, err := c.session.Do(ctx, http.MethodHead, path, http.Header{"Accept": []string{mediaType}})
	if err != nil {
		return "", err
	}

	if !resp.IsSuccess() {
		return "", newProtocolError(http.MethodHead, resp, nil)
	}

	return digest.ExtractHeadDigest(resp.Header)
}
