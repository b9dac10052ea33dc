// Package mocks provides a TLS registry fake built on ghttp for registry-cleaner tests.
package mocks

import (
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/digest"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/manifest"
)

// NewTLSRegistry starts a TLS test server and writes its certificate to a CA file.
//
// Returns:
//   - *ghttp.Server: Started server; callers close it.
//   - string: Path of a PEM bundle trusting the server.
func NewTLSRegistry() (*ghttp.Server, string) {
	server := ghttp.NewTLSServer()

	caFile := filepath.Join(ginkgo.GinkgoT().TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: server.HTTPTestServer.Certificate().Raw}
	gomega.ExpectWithOffset(1, os.WriteFile(caFile, pem.EncodeToMemory(block), 0o600)).To(gomega.Succeed())

	return server, caFile
}

// RespondWithCatalog verifies a catalog request capped at maxCount and lists repositories.
func RespondWithCatalog(basePath string, maxCount int, repositories ...string) http.HandlerFunc {
	return ghttp.CombineHandlers(
		ghttp.VerifyRequest(http.MethodGet, basePath+"/v2/_catalog", "n="+strconv.Itoa(maxCount)),
		ghttp.RespondWithJSONEncoded(http.StatusOK, map[string][]string{"repositories": repositories}),
	)
}

// RespondWithTags verifies a tag listing request and lists tags.
func RespondWithTags(basePath string, repository string, tags ...string) http.HandlerFunc {
	return ghttp.CombineHandlers(
		ghttp.VerifyRequest(http.MethodGet, manifest.TagsPath(basePath, repository)),
		ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"name": repository, "tags": tags}),
	)
}

// RespondWithDigest verifies a HEAD manifest request for mediaType and reports value.
func RespondWithDigest(basePath, repository, tag, mediaType, value string) http.HandlerFunc {
	return ghttp.CombineHandlers(
		ghttp.VerifyRequest(http.MethodHead, manifest.ManifestPath(basePath, repository, tag)),
		ghttp.VerifyHeaderKV("Accept", mediaType),
		ghttp.RespondWith(http.StatusOK, nil, http.Header{digest.ContentDigestHeader: []string{value}}),
	)
}

// RespondWithDelete verifies a manifest deletion and answers with status.
func RespondWithDelete(basePath, repository, value string, status int) http.HandlerFunc {
	return ghttp.CombineHandlers(
		ghttp.VerifyRequest(http.MethodDelete, manifest.ManifestPath(basePath, repository, value)),
		ghttp.RespondWith(status, nil),
	)
}

// Registry is an in-memory registry served through a ghttp server.
//
// Tags are addressed by "repository:tag"; every tag gets a distinct digest.
// Handlers are routed by path, so requests may arrive in any order.
type Registry struct {
	mu           sync.Mutex
	repositories []string
	tags         map[string][]string
	digests      map[string]string // "repository:tag" -> digest
	deleted      []string          // "repository@digest", in arrival order
	deleteStatus int
	heads        int
}

var (
	tagsRoute     = regexp.MustCompile(`^/v2/(.+)/tags/list$`)
	manifestRoute = regexp.MustCompile(`^/v2/(.+)/manifests/([^/]+)$`)
	catalogRoute  = regexp.MustCompile(`^/v2/_catalog$`)
)

// NewRegistry creates an empty registry fake answering 202 to deletions.
func NewRegistry() *Registry {
	return &Registry{
		tags:         map[string][]string{},
		digests:      map[string]string{},
		deleteStatus: http.StatusAccepted,
	}
}

// AddRepository registers a repository with its tags.
func (r *Registry) AddRepository(repository string, tags ...string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.repositories = append(r.repositories, repository)
	r.tags[repository] = tags

	for _, tag := range tags {
		key := repository + ":" + tag
		r.digests[key] = "sha256:" + padDigest(strconv.Itoa(len(r.digests)+1))
	}

	return r
}

// SetDigest replaces the digest sent for a "repository:tag". An empty value
// answers lookups with 200 and no digest header.
func (r *Registry) SetDigest(imageRef, value string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.digests[imageRef] = value

	return r
}

// FailDeletes makes every deletion answer with status.
func (r *Registry) FailDeletes(status int) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteStatus = status

	return r
}

// Digest returns the digest assigned to a "repository:tag".
func (r *Registry) Digest(imageRef string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.digests[imageRef]
}

// Deleted returns the "repository@digest" deletions received so far.
func (r *Registry) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.deleted...)
}

// HeadRequests returns the number of digest lookups received so far.
func (r *Registry) HeadRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.heads
}

// Serve routes the registry API of server to this fake.
func (r *Registry) Serve(server *ghttp.Server) {
	server.RouteToHandler(http.MethodGet, catalogRoute, r.catalog)
	server.RouteToHandler(http.MethodGet, tagsRoute, r.tagList)
	server.RouteToHandler(http.MethodHead, manifestRoute, r.head)
	server.RouteToHandler(http.MethodDelete, manifestRoute, r.delete)
}

func (r *Registry) catalog(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	repositories := append([]string{}, r.repositories...)
	r.mu.Unlock()

	if n, err := strconv.Atoi(req.URL.Query().Get("n")); err == nil && n < len(repositories) {
		repositories = repositories[:n]
	}

	ghttp.RespondWithJSONEncoded(http.StatusOK, map[string][]string{"repositories": repositories})(w, req)
}

func (r *Registry) tagList(w http.ResponseWriter, req *http.Request) {
	repository := tagsRoute.FindStringSubmatch(req.URL.Path)[1]

	r.mu.Lock()
	tags, found := r.tags[repository]
	r.mu.Unlock()

	if !found {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"name": repository, "tags": tags})(w, req)
}

func (r *Registry) head(w http.ResponseWriter, req *http.Request) {
	match := manifestRoute.FindStringSubmatch(req.URL.Path)

	r.mu.Lock()
	r.heads++
	value, found := r.digests[match[1]+":"+match[2]]
	r.mu.Unlock()

	if !found {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	if value != "" {
		w.Header().Set(digest.ContentDigestHeader, value)
	}

	w.WriteHeader(http.StatusOK)
}

func (r *Registry) delete(w http.ResponseWriter, req *http.Request) {
	match := manifestRoute.FindStringSubmatch(req.URL.Path)

	r.mu.Lock()
	status := r.deleteStatus
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		r.deleted = append(r.deleted, match[1]+"@"+match[2])
	}
	r.mu.Unlock()

	w.WriteHeader(status)
}

// padDigest left-pads a counter to a 64 character hex string.
func padDigest(counter string) string {
	const width = 64

	padded := make([]byte, 0, width)
	for range width - len(counter) {
		padded = append(padded, '0')
	}

	return string(append(padded, counter...))
}
